// Package resource declares which cached API families depend on which
// written entity. The server publishes invalidation events from it and the
// dashboard client invalidates its cache from the same table, so a write to
// one entity refreshes every view that displays it.
package resource

import "strings"

type Entity string

const (
	Tenant       Entity = "tenant"
	Plan         Entity = "plan"
	VoucherBatch Entity = "voucher_batch"
	Voucher      Entity = "voucher"
	WifiUser     Entity = "wifi_user"
	Hotspot      Entity = "hotspot"
	Transaction  Entity = "transaction"
	Ticket       Entity = "ticket"
	Loyalty      Entity = "loyalty"
	WalledGarden Entity = "walled_garden"
	Notification Entity = "notification"
	Terminal     Entity = "terminal"
)

// Family is a key prefix given as path segments, e.g. {"api", "plans"}.
type Family []string

func (f Family) Path() string { return "/" + strings.Join(f, "/") }

func family(path string) Family { return Family(strings.Split(strings.Trim(path, "/"), "/")) }

var (
	famTenant       = family("/api/tenant")
	famTenants      = family("/api/superadmin/tenants")
	famPlans        = family("/api/plans")
	famBatches      = family("/api/voucher-batches")
	famVouchers     = family("/api/vouchers")
	famWifiUsers    = family("/api/wifi-users")
	famHotspots     = family("/api/hotspots")
	famTransactions = family("/api/transactions")
	famTickets      = family("/api/tickets")
	famLoyalty      = family("/api/loyalty")
	famWalledGarden = family("/api/walled-garden")
	famReports      = family("/api/reports")
	famNotify       = family("/api/notifications")
	famTerminal     = family("/api/terminal/history")
)

var dependencies = map[Entity][]Family{
	Tenant:       {famTenant, famTenants},
	Plan:         {famPlans, famBatches, famWifiUsers},
	VoucherBatch: {famBatches, famVouchers, famReports},
	Voucher:      {famVouchers, famBatches, famReports},
	WifiUser:     {famWifiUsers, famLoyalty, famReports},
	Hotspot:      {famHotspots},
	Transaction:  {famTransactions, famWifiUsers, famLoyalty, famReports},
	Ticket:       {famTickets, famReports},
	Loyalty:      {famLoyalty, famWifiUsers},
	WalledGarden: {famWalledGarden},
	Notification: {famNotify},
	Terminal:     {famTerminal},
}

// Families returns the de-duplicated families for the given entities in
// table order.
func Families(entities ...Entity) []Family {
	seen := make(map[string]bool)
	var out []Family
	for _, e := range entities {
		for _, f := range dependencies[e] {
			p := f.Path()
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, f)
		}
	}
	return out
}

func (e Entity) Valid() bool {
	_, ok := dependencies[e]
	return ok
}

// All lists every known entity.
func All() []Entity {
	return []Entity{Tenant, Plan, VoucherBatch, Voucher, WifiUser, Hotspot,
		Transaction, Ticket, Loyalty, WalledGarden, Notification, Terminal}
}
