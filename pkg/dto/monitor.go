package dto

type ActivityEntry struct {
	Timestamp string `json:"timestamp"`
	Count     int    `json:"count"`
}

type ActivityResponse struct {
	Entries []ActivityEntry `json:"entries"`
}
