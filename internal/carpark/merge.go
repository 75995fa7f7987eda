package carpark

// MergeStats summarizes one merge pass so the caller can log it.
type MergeStats struct {
	Carparks         int // records in the merged map
	WithLiveData     int // records with at least one sample
	UnmatchedSamples int // samples dropped for lack of matching metadata
}

// Merge left-joins availability samples onto metadata by normalized
// carpark number. Every metadata entry produces a record; samples with
// no matching metadata are dropped and counted. A record's ObservedAt is
// the freshest UpdatedAt among its samples, or the zero time when it has
// none. The result depends only on the inputs.
func Merge(metadata []CarparkMetadata, availability []AvailabilitySample) (map[string]MergedRecord, MergeStats) {
	groups := make(map[string][]AvailabilitySample)
	for _, sample := range availability {
		sample.CarparkNumber = NormalizeNumber(sample.CarparkNumber)
		groups[sample.CarparkNumber] = append(groups[sample.CarparkNumber], sample)
	}

	records := make(map[string]MergedRecord, len(metadata))
	stats := MergeStats{}

	for _, meta := range metadata {
		meta.CarparkNumber = NormalizeNumber(meta.CarparkNumber)

		rec := MergedRecord{Metadata: meta}
		if samples, ok := groups[meta.CarparkNumber]; ok {
			rec.Availability = samples
			for _, s := range samples {
				if s.UpdatedAt.After(rec.ObservedAt) {
					rec.ObservedAt = s.UpdatedAt
				}
			}
			stats.WithLiveData++
			delete(groups, meta.CarparkNumber)
		}
		records[meta.CarparkNumber] = rec
	}

	for _, leftover := range groups {
		stats.UnmatchedSamples += len(leftover)
	}
	stats.Carparks = len(records)

	return records, stats
}
