// Package domain models river flow forecasts, return-period thresholds, and
// the flow alerts derived from them.
//
// # Data Sources
//
// Forecasts come from the National Water Prediction Service (NWPS) reach
// streamflow endpoint, keyed by the National Water Model reach (feature) ID.
// Two horizons are used:
//
//	short_range   roughly 0–3 days, hourly
//	medium_range  roughly 4–10 days, 3-hourly (ensemble mean)
//
// Flows are reported in cubic feet per second (CFS). Points whose valid time
// is not after the fetch time are dropped during normalization.
//
// Return-period thresholds are precomputed flood-frequency flows per reach:
// the 2, 5, 10, 25, 50 and 100-year flows. A table may be sparse; any subset
// of those years is legal. All values of one table share a unit.
//
// # Classification
//
// A forecast point is compared against every threshold in the table, after
// converting each to the point's unit. Among the thresholds the flow reaches,
// the largest return period is the match. On a table whose flows rise with
// the return period this is also the highest flow reached, so a point that
// exceeds the 100-year flow is a 100-year event and nothing else. On an
// out-of-order table a larger flow never classifies lower than a smaller one.
// Severity follows from the matched years:
//
//	years >= 50  extreme
//	years >= 25  severe
//	years >= 10  major
//	years >= 5   significant
//	otherwise    moderate
//
// # Quiet Hours
//
// Users may suppress alerting during a daily window. The gate compares the
// hour of the current time only; minutes are stored on the preference record
// but do not take part in the decision. A window whose start hour is after
// its end hour wraps midnight.
//
// # ID Generation
//
// Alert IDs are deterministic SHA-256 hashes of riverID|returnPeriod|forecast
// time. Re-evaluating the same forecast produces the same ID, so history
// writes collide and upsert instead of duplicating. See [AlertID].
package domain
