// Package domain models NRCS Air-Water Database (AWDB) station metadata.
//
// # Data Source
//
// Station records originate from the NRCS AWDB SOAP web service
// (https://wcc.sc.egov.usda.gov/awdbWebService/services), which catalogs
// the monitoring stations behind SNOTEL, snow course, SCAN, and several
// cooperator networks. Stations are grouped into networks by a network
// code (SNTL, SNOW, USGS, COOP, SCAN, SNTLT, OTHER, BOR, MPRC, MSNT);
// each network is synced into its own feature table and published
// independently.
//
// # AWDB Data Conventions
//
// Station triplet:
//
//	"<station id>:<state>:<network code>"  →  e.g. "302:OR:SNTL"
//	The triplet is the service's natural key and is unique within a
//	network. It is kept verbatim as the primary key of the feature
//	tables so records can be joined back to the AWDB.
//
// Dates:
//
//	beginDate and endDate arrive as "2006-01-02 15:04:05" strings in
//	station-local reckoning. A station that is still collecting data
//	carries the far-future sentinel end date 2100-01-01 00:00:00 instead
//	of a null or a boolean flag; downstream layers filter on exactly that
//	value to build their "active" views. Classification must compare
//	against the sentinel exactly: an end date of 2099-12-31 23:59:59 is
//	inactive.
//
// Coordinates:
//
//	Latitude/longitude are WGS-84 (EPSG:4326) decimal degrees and are the
//	only fields the service guarantees; elevation (feet) and all other
//	attributes may be absent and are stored as nulls.
//
// # Reconciliation Policy
//
// Reconciliation against the store is append-only: stations that
// disappear from the AWDB are kept with their last-known attributes so
// the historical presence of a site is preserved. This is a documented
// upstream policy, not a missing feature; [Diff] produces inserts and
// updates but never deletes.
package domain
