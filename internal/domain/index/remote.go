package index

// Remote describes an index as it exists on the engine.
type Remote struct {
	UID        string `json:"uid"`
	PrimaryKey string `json:"primaryKey,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

// RemoteList is one page of the engine's index listing.
type RemoteList struct {
	Results []Remote `json:"results"`
	Offset  int      `json:"offset"`
	Limit   int      `json:"limit"`
	Total   int      `json:"total"`
}
