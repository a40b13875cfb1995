// Package fact defines the tabular data contract shared by every component:
// long-format fact tables keyed by (geography, dimension values) and the
// control tables that constrain their marginals.
//
// Tables are append-only. Components never modify their inputs; they build
// new tables.
//
//	seed := fact.New("gender", "employment")
//	_ = seed.Add("E001", 10, "f", "fte")
//
//	ctl := fact.NewControl("zone_total", "")
//	_ = ctl.Targets.Add("E001", 100)
package fact
