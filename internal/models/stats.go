package models

// SyncCounters aggregate counters reported by every reconciliation pass
type SyncCounters struct {
	Processed int `json:"processed"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Retained  int `json:"retained"`
	Skipped   int `json:"skipped"`
	Errored   int `json:"errored"`
}

// Add accumulates other into c
func (c *SyncCounters) Add(other SyncCounters) {
	c.Processed += other.Processed
	c.Inserted += other.Inserted
	c.Updated += other.Updated
	c.Retained += other.Retained
	c.Skipped += other.Skipped
	c.Errored += other.Errored
}

// Written inserted + updated + retained
func (c SyncCounters) Written() int {
	return c.Inserted + c.Updated + c.Retained
}
