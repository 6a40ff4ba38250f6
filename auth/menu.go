package auth

import "github.com/dapurkue/stockledger/inventory"

// MenuItem is one navigation entry shown to a signed-in user.
type MenuItem struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Path  string `json:"path"`
}

var (
	menuDashboard = MenuItem{Key: "dashboard", Label: "Dashboard", Path: "/dashboard"}
	menuStock     = MenuItem{Key: "stock", Label: "Stock", Path: "/products"}
	menuSuppliers = MenuItem{Key: "suppliers", Label: "Suppliers", Path: "/suppliers"}
	menuInbound   = MenuItem{Key: "inbound", Label: "Goods In", Path: "/inbound"}
	menuOutbound  = MenuItem{Key: "outbound", Label: "Goods Out", Path: "/outbound"}
	menuReports   = MenuItem{Key: "reports", Label: "Reports", Path: "/reports"}
)

// Menu returns the navigation entries for role. Unknown roles get none.
func Menu(role inventory.Role) []MenuItem {
	switch role {
	case inventory.RoleAdmin:
		return []MenuItem{menuDashboard, menuStock, menuSuppliers, menuInbound, menuOutbound, menuReports}
	case inventory.RoleManager:
		return []MenuItem{menuDashboard, menuStock, menuReports}
	default:
		return nil
	}
}
