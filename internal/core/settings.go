package core

import "encoding/base64"

// StorageKey names the persisted state document.
const StorageKey = "kams_enterprise_db_v1"

// DefaultAccessKey is the access key of a fresh installation.
const DefaultAccessKey = "admin"

type (
	BandwidthPackage struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Bandwidth string `json:"bandwidth"`
		Price     Money  `json:"price"`
		Remark    string `json:"remark"`
	}

	Settings struct {
		CompanyName        string             `json:"companyName"`
		CompanyTagline     string             `json:"companyTagline"`
		CompanyAddress     string             `json:"companyAddress"`
		UserName           string             `json:"userName"`
		CurrencySymbol     string             `json:"currencySymbol"`
		Theme              string             `json:"theme"`
		BrandColor         string             `json:"brandColor"`
		CustomHeaders      map[string]string  `json:"customHeaders"`
		ColumnOrder        []string           `json:"columnOrder"`
		DynamicFields      []string           `json:"dynamicFields"`
		PasswordHash       string             `json:"passwordHash"`
		SecurityQuestion   string             `json:"securityQuestion"`
		SecurityAnswerHash string             `json:"securityAnswerHash"`
		AutoBackupEnabled  bool               `json:"autoBackupEnabled"`
		LocalBackupEnabled bool               `json:"localBackupEnabled"`
		CloudBackupEnabled bool               `json:"cloudBackupEnabled"`
		AutoUpdateEnabled  bool               `json:"autoUpdateEnabled"`
		LastBackupDate     string             `json:"lastBackupDate"`
		MaxDueDate         int                `json:"maxDueDate"`
		GoogleConnected    bool               `json:"googleCloudConnected"`
		BandwidthPackages  []BandwidthPackage `json:"bandwidthPackages"`
	}
)

// DefaultHeaders are the column captions of the billing sheet.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"slNo":             "SL No",
		"displayClientId":  "Client ID",
		"username":         "Username",
		"name":             "Client Name",
		"isActive":         "Active",
		"clientType":       "Client Type",
		"lineType":         "Line Type",
		"bandwidthPackage": "Package",
		"contact":          "Contact Number",
		"address":          "Full Address",
		"area":             "Area",
		"monthKey":         "Bill Month",
		"paymentDate":      "Payment Date",
		"payable":          "Payable",
		"paid":             "Paid",
		"status":           "Payment Status",
		"receiptNo":        "Receipt No",
		"overdue":          "Overdue (Months)",
		"remarks":          "Remarks",
	}
}

// DefaultColumnOrder is the column order of the billing sheet.
func DefaultColumnOrder() []string {
	return []string{
		"slNo", "displayClientId", "username", "name", "isActive", "clientType",
		"lineType", "bandwidthPackage", "contact", "address", "area", "payable",
		"paid", "status", "receiptNo", "overdue", "remarks", "actions",
	}
}

// LegacyHash encodes a secret the way first-generation installs stored it.
func LegacyHash(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func DefaultSettings() Settings {
	return Settings{
		CompanyName:        "ISPLedger",
		CompanyTagline:     "Professional ISP Management",
		UserName:           "Admin",
		CurrencySymbol:     "৳",
		Theme:              "system",
		BrandColor:         "blue",
		CustomHeaders:      DefaultHeaders(),
		ColumnOrder:        DefaultColumnOrder(),
		DynamicFields:      []string{},
		PasswordHash:       LegacyHash(DefaultAccessKey),
		SecurityQuestion:   "What is your pet's name?",
		SecurityAnswerHash: LegacyHash(DefaultAccessKey),
		AutoBackupEnabled:  true,
		LocalBackupEnabled: true,
		AutoUpdateEnabled:  true,
		MaxDueDate:         10,
		BandwidthPackages: []BandwidthPackage{
			{ID: "1", Name: "5 Mbps", Bandwidth: "5 Mbps", Price: NewMoney(500), Remark: "Starter"},
			{ID: "2", Name: "10 Mbps", Bandwidth: "10 Mbps", Price: NewMoney(800), Remark: "Standard"},
			{ID: "3", Name: "15 Mbps", Bandwidth: "15 Mbps", Price: NewMoney(1000), Remark: "Gaming"},
			{ID: "4", Name: "20 Mbps", Bandwidth: "20 Mbps", Price: NewMoney(1200), Remark: "Streamer"},
		},
	}
}

// PackagePrice looks up the price of a bandwidth package by name.
func (s Settings) PackagePrice(name string) (Money, bool) {
	for _, p := range s.BandwidthPackages {
		if p.Name == name {
			return p.Price, true
		}
	}
	return Zero, false
}
