package core

import "strings"

type (
	AssetStatus     string
	InventoryTxType string
	StockOutReason  string
)

const (
	AssetSold AssetStatus = "Sold"
	AssetLent AssetStatus = "Lent"
	AssetFree AssetStatus = "Free"

	TxPurchase InventoryTxType = "Purchase"
	TxRestock  InventoryTxType = "Restock"
	TxStockOut InventoryTxType = "StockOut"
	TxAssign   InventoryTxType = "Assign"
	TxReturn   InventoryTxType = "Return"

	ReasonDamaged  StockOutReason = "Damaged"
	ReasonLost     StockOutReason = "Lost"
	ReasonReturned StockOutReason = "Returned"
	ReasonUsed     StockOutReason = "Used"
)

// Ledger categories written by inventory and billing flows.
const (
	CategoryOpeningBalance    = "Opening Balance"
	CategoryInventoryPurchase = "Inventory Purchase"
	CategoryInventoryReturn   = "Inventory Return"
	CategoryHardwareSales     = "Hardware Sales"
	CategoryNetworkDeployment = "Network Deployment"
)

// ExpenseCategories are the categories offered for manual ledger entries.
var ExpenseCategories = []string{
	"Bandwidth Bill",
	"Fiber Equipment",
	"Salary",
	"Office Rent",
	"Electricity",
	"Owner Profit (∆)",
	"Other",
}

type (
	InventoryItem struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Type            string `json:"type"`
		BuyPrice        Money  `json:"buyPrice"`
		SellPrice       Money  `json:"sellPrice"`
		StockCount      int    `json:"stockCount"`
		InitialStock    int    `json:"initialStock"`
		TotalBought     int    `json:"totalBought"`
		TotalCost       Money  `json:"totalCost"`
		Description     string `json:"description"`
		SupplierName    string `json:"supplierName,omitempty"`
		SupplierAddress string `json:"supplierAddress,omitempty"`
		PurchaseDate    string `json:"purchaseDate,omitempty"`
	}

	// InventoryTransaction is an append-only stock movement.
	InventoryTransaction struct {
		ID         string          `json:"id"`
		Date       string          `json:"date"`
		ItemID     string          `json:"itemId"`
		ItemName   string          `json:"itemName"`
		Type       InventoryTxType `json:"type"`
		Quantity   int             `json:"quantity"`
		ClientID   string          `json:"clientId,omitempty"`
		ClientName string          `json:"clientName,omitempty"`
		Remarks    string          `json:"remarks"`
	}

	// ClientAsset is hardware handed to a client.
	ClientAsset struct {
		ID              string      `json:"id"`
		InventoryItemID string      `json:"inventoryItemId"`
		Name            string      `json:"name"`
		AssignedDate    string      `json:"assignedDate"`
		Status          AssetStatus `json:"status"`
		PriceCharged    Money       `json:"priceCharged"`
	}
)

func (i InventoryItem) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return ErrEmptyName
	}
	if i.StockCount < 0 {
		return ErrInsufficientStock
	}
	if i.BuyPrice.IsNegative() || i.SellPrice.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

func (s AssetStatus) Valid() bool {
	switch s {
	case AssetSold, AssetLent, AssetFree:
		return true
	}
	return false
}
