package models

// SQLChunk is a group of literal-row SELECTs joined by UNION ALL.
type SQLChunk struct {
	Dataset string   `json:"dataset"`
	Index   int      `json:"index"`
	Columns []string `json:"columns"`
	SQL     string   `json:"sql"`
	Rows    int      `json:"rows"`
}
