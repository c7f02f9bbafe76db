package store

import (
	"context"
	"fmt"

	"ispledger/internal/core"
	"ispledger/internal/log"
)

// ItemInput describes a new or edited inventory item.
type ItemInput struct {
	Name            string     `json:"name" validate:"required,max=120"`
	Type            string     `json:"type" validate:"max=64"`
	BuyPrice        core.Money `json:"buyPrice"`
	SellPrice       core.Money `json:"sellPrice"`
	StockCount      int        `json:"stockCount" validate:"gte=0"`
	Description     string     `json:"description" validate:"max=255"`
	SupplierName    string     `json:"supplierName" validate:"max=120"`
	SupplierAddress string     `json:"supplierAddress" validate:"max=255"`
	PurchaseDate    string     `json:"purchaseDate" validate:"omitempty,datetime=2006-01-02"`
}

// StockOutInput removes stock for a reason other than assignment.
type StockOutInput struct {
	Quantity     int                 `json:"quantity" validate:"gt=0"`
	Reason       core.StockOutReason `json:"reason" validate:"required"`
	RefundAmount core.Money          `json:"refundAmount"`
	Remarks      string              `json:"remarks" validate:"max=255"`
}

// AssetInput hands one unit of an item to a client.
type AssetInput struct {
	ItemID string           `json:"itemId" validate:"required"`
	Status core.AssetStatus `json:"status" validate:"required,oneof=Sold Lent Free"`
	Price  core.Money       `json:"price"`
}

func supplierOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// CreateItem adds an inventory item. Opening stock is booked as an
// inventory purchase debit and a purchase history entry.
func (s *Store) CreateItem(ctx context.Context, in ItemInput) (core.InventoryItem, error) {
	var item core.InventoryItem
	_, err := s.update(ctx, log.OpCreate, func(st *core.GlobalState) error {
		date := orDefault(in.PurchaseDate, core.DateOf(s.now()))
		cost := in.BuyPrice.Mul(in.StockCount)
		item = core.InventoryItem{
			ID:              s.newID(),
			Name:            in.Name,
			Type:            in.Type,
			BuyPrice:        in.BuyPrice,
			SellPrice:       in.SellPrice,
			StockCount:      in.StockCount,
			InitialStock:    in.StockCount,
			TotalBought:     in.StockCount,
			TotalCost:       cost,
			Description:     in.Description,
			SupplierName:    in.SupplierName,
			SupplierAddress: in.SupplierAddress,
			PurchaseDate:    date,
		}
		if err := item.Validate(); err != nil {
			return err
		}
		st.Inventory = append(st.Inventory, item)

		if in.StockCount > 0 {
			if cost.IsPositive() {
				st.Expenses = append(st.Expenses, core.ExpenseTransaction{
					ID:          s.newID(),
					Date:        date,
					Amount:      cost,
					Type:        core.Debit,
					Category:    core.CategoryInventoryPurchase,
					Description: fmt.Sprintf("Initial Stock: %dx %s from %s", in.StockCount, item.Name, supplierOr(item.SupplierName, "Supplier")),
				})
			}
			st.InventoryHistory = append(st.InventoryHistory, core.InventoryTransaction{
				ID:       s.newID(),
				Date:     date,
				ItemID:   item.ID,
				ItemName: item.Name,
				Type:     core.TxPurchase,
				Quantity: in.StockCount,
				Remarks:  "Initial Purchase. Supplier: " + supplierOr(item.SupplierName, "N/A"),
			})
		}
		return nil
	})
	if err != nil {
		return core.InventoryItem{}, err
	}
	s.logger.InfoContext(ctx, "Inventory item created", log.FieldItemID, item.ID, "stock", item.StockCount)
	return item, nil
}

// UpdateItem edits item details. Stock is only changed by Restock and the
// stock movement operations.
func (s *Store) UpdateItem(ctx context.Context, id string, in ItemInput) (core.InventoryItem, error) {
	var item core.InventoryItem
	_, err := s.update(ctx, log.OpUpdate, func(st *core.GlobalState) error {
		i := st.ItemIndex(id)
		if i < 0 {
			return fmt.Errorf("item %s: %w", id, core.ErrNotFound)
		}
		it := st.Inventory[i]
		it.Name = in.Name
		it.Type = in.Type
		it.BuyPrice = in.BuyPrice
		it.SellPrice = in.SellPrice
		it.Description = in.Description
		it.SupplierName = in.SupplierName
		it.SupplierAddress = in.SupplierAddress
		if err := it.Validate(); err != nil {
			return err
		}
		st.Inventory[i] = it
		item = it
		return nil
	})
	return item, err
}

// Restock buys more units at the item's buy price.
func (s *Store) Restock(ctx context.Context, id string, qty int, date string) (core.InventoryItem, error) {
	if qty <= 0 {
		return core.InventoryItem{}, core.ErrInvalidQuantity
	}
	var item core.InventoryItem
	_, err := s.update(ctx, log.OpStockMove, func(st *core.GlobalState) error {
		i := st.ItemIndex(id)
		if i < 0 {
			return fmt.Errorf("item %s: %w", id, core.ErrNotFound)
		}
		date = orDefault(date, core.DateOf(s.now()))
		it := st.Inventory[i]
		cost := it.BuyPrice.Mul(qty)

		st.Expenses = append(st.Expenses, core.ExpenseTransaction{
			ID:          s.newID(),
			Date:        date,
			Amount:      cost,
			Type:        core.Debit,
			Category:    core.CategoryInventoryPurchase,
			Description: fmt.Sprintf("Restock: %dx %s from %s", qty, it.Name, supplierOr(it.SupplierName, "Supplier")),
		})
		st.InventoryHistory = append(st.InventoryHistory, core.InventoryTransaction{
			ID:       s.newID(),
			Date:     date,
			ItemID:   it.ID,
			ItemName: it.Name,
			Type:     core.TxRestock,
			Quantity: qty,
			Remarks:  "Supplier: " + supplierOr(it.SupplierName, "N/A"),
		})

		it.StockCount += qty
		it.TotalBought += qty
		it.TotalCost = it.TotalCost.Add(cost)
		it.PurchaseDate = date
		st.Inventory[i] = it
		item = it
		return nil
	})
	return item, err
}

// StockOut removes damaged, lost or returned units. A refund on returned
// units is booked as an inventory return credit.
func (s *Store) StockOut(ctx context.Context, id string, in StockOutInput) (core.InventoryItem, error) {
	var item core.InventoryItem
	_, err := s.update(ctx, log.OpStockMove, func(st *core.GlobalState) error {
		i := st.ItemIndex(id)
		if i < 0 {
			return fmt.Errorf("item %s: %w", id, core.ErrNotFound)
		}
		it := st.Inventory[i]
		if in.Quantity <= 0 {
			return core.ErrInvalidQuantity
		}
		if in.Quantity > it.StockCount {
			return fmt.Errorf("%w: %d requested, %d in stock", core.ErrInsufficientStock, in.Quantity, it.StockCount)
		}
		today := core.DateOf(s.now())
		it.StockCount -= in.Quantity
		st.Inventory[i] = it

		st.InventoryHistory = append(st.InventoryHistory, core.InventoryTransaction{
			ID:       s.newID(),
			Date:     today,
			ItemID:   it.ID,
			ItemName: it.Name,
			Type:     core.TxStockOut,
			Quantity: in.Quantity,
			Remarks:  fmt.Sprintf("%s: %s", in.Reason, in.Remarks),
		})
		if in.Reason == core.ReasonReturned && in.RefundAmount.IsPositive() {
			st.Expenses = append(st.Expenses, core.ExpenseTransaction{
				ID:          s.newID(),
				Date:        today,
				Amount:      in.RefundAmount,
				Type:        core.Credit,
				Category:    core.CategoryInventoryReturn,
				Description: fmt.Sprintf("Returned %dx %s (%s)", in.Quantity, it.Name, in.Remarks),
			})
		}
		item = it
		return nil
	})
	return item, err
}

// DeleteItem removes an item from the stock list. History is kept.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	_, err := s.update(ctx, log.OpDelete, func(st *core.GlobalState) error {
		i := st.ItemIndex(id)
		if i < 0 {
			return fmt.Errorf("item %s: %w", id, core.ErrNotFound)
		}
		st.Inventory = append(st.Inventory[:i:i], st.Inventory[i+1:]...)
		return nil
	})
	return err
}

// AssignAsset hands one unit to a client. Sales are booked as hardware
// sales credits.
func (s *Store) AssignAsset(ctx context.Context, clientID string, in AssetInput) (core.ClientAsset, error) {
	if !in.Status.Valid() {
		return core.ClientAsset{}, fmt.Errorf("%w: asset status %q", core.ErrValidation, in.Status)
	}
	var asset core.ClientAsset
	_, err := s.update(ctx, log.OpStockMove, func(st *core.GlobalState) error {
		ci := st.ClientIndex(clientID)
		if ci < 0 {
			return fmt.Errorf("client %s: %w", clientID, core.ErrNotFound)
		}
		ii := st.ItemIndex(in.ItemID)
		if ii < 0 {
			return fmt.Errorf("item %s: %w", in.ItemID, core.ErrNotFound)
		}
		it := st.Inventory[ii]
		if it.StockCount <= 0 {
			return fmt.Errorf("%w: %s is out of stock", core.ErrInsufficientStock, it.Name)
		}
		today := core.DateOf(s.now())
		client := st.Clients[ci]

		price := core.Zero
		if in.Status == core.AssetSold {
			price = in.Price
		}
		asset = core.ClientAsset{
			ID:              s.newID(),
			InventoryItemID: it.ID,
			Name:            it.Name,
			AssignedDate:    today,
			Status:          in.Status,
			PriceCharged:    price,
		}
		it.StockCount--
		st.Inventory[ii] = it
		client.AssignedAssets = append(client.AssignedAssets, asset)
		st.Clients[ci] = client

		if in.Status == core.AssetSold && price.IsPositive() {
			st.Expenses = append(st.Expenses, core.ExpenseTransaction{
				ID:          s.newID(),
				Date:        today,
				Amount:      price,
				Type:        core.Credit,
				Category:    core.CategoryHardwareSales,
				Description: fmt.Sprintf("Sold %s to %s", it.Name, client.Name),
			})
		}
		st.InventoryHistory = append(st.InventoryHistory, core.InventoryTransaction{
			ID:         s.newID(),
			Date:       today,
			ItemID:     it.ID,
			ItemName:   it.Name,
			Type:       core.TxAssign,
			Quantity:   1,
			ClientID:   client.ID,
			ClientName: client.Name,
			Remarks:    "Status: " + string(in.Status),
		})
		return nil
	})
	return asset, err
}

// ReturnAsset takes an assigned unit back into stock.
func (s *Store) ReturnAsset(ctx context.Context, clientID, assetID string) error {
	_, err := s.update(ctx, log.OpStockMove, func(st *core.GlobalState) error {
		ci := st.ClientIndex(clientID)
		if ci < 0 {
			return fmt.Errorf("client %s: %w", clientID, core.ErrNotFound)
		}
		client := st.Clients[ci]
		ai := -1
		for i, a := range client.AssignedAssets {
			if a.ID == assetID {
				ai = i
				break
			}
		}
		if ai < 0 {
			return fmt.Errorf("asset %s: %w", assetID, core.ErrNotFound)
		}
		asset := client.AssignedAssets[ai]
		client.AssignedAssets = append(client.AssignedAssets[:ai:ai], client.AssignedAssets[ai+1:]...)
		st.Clients[ci] = client

		itemName := "Unknown Item"
		if ii := st.ItemIndex(asset.InventoryItemID); ii >= 0 {
			st.Inventory[ii].StockCount++
			itemName = st.Inventory[ii].Name
		}
		st.InventoryHistory = append(st.InventoryHistory, core.InventoryTransaction{
			ID:         s.newID(),
			Date:       core.DateOf(s.now()),
			ItemID:     asset.InventoryItemID,
			ItemName:   itemName,
			Type:       core.TxReturn,
			Quantity:   1,
			ClientID:   client.ID,
			ClientName: client.Name,
			Remarks:    "Returned from client",
		})
		return nil
	})
	return err
}

// AssignToNode deploys one unit on a diagram node. The unit's buy price is
// booked as a network deployment debit.
func (s *Store) AssignToNode(ctx context.Context, nodeID, itemID string) (core.DiagramNode, error) {
	var node core.DiagramNode
	_, err := s.update(ctx, log.OpStockMove, func(st *core.GlobalState) error {
		n, ni, ok := st.NetworkDiagram.Node(nodeID)
		if !ok {
			return fmt.Errorf("node %s: %w", nodeID, core.ErrNotFound)
		}
		ii := st.ItemIndex(itemID)
		if ii < 0 {
			return fmt.Errorf("item %s: %w", itemID, core.ErrNotFound)
		}
		it := st.Inventory[ii]
		if it.StockCount <= 0 {
			return fmt.Errorf("%w: %s is out of stock", core.ErrInsufficientStock, it.Name)
		}
		today := core.DateOf(s.now())
		it.StockCount--
		st.Inventory[ii] = it

		st.Expenses = append(st.Expenses, core.ExpenseTransaction{
			ID:          s.newID(),
			Date:        today,
			Amount:      it.BuyPrice,
			Type:        core.Debit,
			Category:    core.CategoryNetworkDeployment,
			Description: fmt.Sprintf("Assigned %s to %s", it.Name, n.Label),
		})
		st.InventoryHistory = append(st.InventoryHistory, core.InventoryTransaction{
			ID:       s.newID(),
			Date:     today,
			ItemID:   it.ID,
			ItemName: it.Name,
			Type:     core.TxAssign,
			Quantity: 1,
			Remarks:  "Assigned to Node: " + n.Label,
		})

		n.AssignedInventoryID = it.ID
		n.AssignedInventoryName = it.Name
		n.AssignedDate = today
		st.NetworkDiagram.Nodes[ni] = n
		node = n
		return nil
	})
	return node, err
}

// StockValue is the buy-price value of the current stock.
func StockValue(items []core.InventoryItem) core.Money {
	total := core.Zero
	for _, it := range items {
		total = total.Add(it.BuyPrice.Mul(it.StockCount))
	}
	return total
}
