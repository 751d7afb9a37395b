package domain

// ChangeSet is the outcome of diffing a fetched station set against the
// stored set for one network. There is deliberately no delete list: stations
// removed upstream stay in the feature table (see package doc).
type ChangeSet struct {
	Inserts []Station
	Updates []Station
}

// Empty reports whether applying the change set would write nothing.
func (c ChangeSet) Empty() bool {
	return len(c.Inserts) == 0 && len(c.Updates) == 0
}

// Size returns the total number of records the change set would write.
func (c ChangeSet) Size() int {
	return len(c.Inserts) + len(c.Updates)
}

// Diff computes the changes needed to bring the stored set in line with the
// fetched set, keyed by station triplet. Fetched-only stations become
// inserts; stations present in both become updates when any attribute
// differs; stored-only stations are left untouched. Input order of fetched
// is preserved in the output.
func Diff(fetched []Station, stored map[string]Station) ChangeSet {
	var cs ChangeSet
	for _, station := range fetched {
		prev, ok := stored[station.Key()]
		if !ok {
			cs.Inserts = append(cs.Inserts, station)
			continue
		}
		if !sameAttributes(station, prev) {
			cs.Updates = append(cs.Updates, station)
		}
	}
	return cs
}

// sameAttributes compares every reconciled attribute of two stations.
// SyncedAt is bookkeeping, not data, and is excluded.
func sameAttributes(a, b Station) bool {
	return a.Triplet == b.Triplet &&
		a.StationID == b.StationID &&
		a.State == b.State &&
		a.NetworkCode == b.NetworkCode &&
		a.Name == b.Name &&
		a.ActonID == b.ActonID &&
		a.ShefID == b.ShefID &&
		a.HUC == b.HUC &&
		a.CountyName == b.CountyName &&
		a.FIPSCountryCode == b.FIPSCountryCode &&
		eqInt16Ptr(a.FIPSCountyCode, b.FIPSCountyCode) &&
		eqInt16Ptr(a.FIPSStateNumber, b.FIPSStateNumber) &&
		eqFloatPtr(a.DataTimeZone, b.DataTimeZone) &&
		eqFloatPtr(a.StationTimeZone, b.StationTimeZone) &&
		a.Latitude == b.Latitude &&
		a.Longitude == b.Longitude &&
		eqFloatPtr(a.Elevation, b.Elevation) &&
		a.BeginDate.Equal(b.BeginDate) &&
		a.EndDate.Equal(b.EndDate) &&
		eqFloatPtr(a.BasinArea, b.BasinArea) &&
		a.USGSID == b.USGSID &&
		a.USGSName == b.USGSName
}

func eqFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqInt16Ptr(a, b *int16) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
