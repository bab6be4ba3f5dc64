package models

// Center is an organisational unit owning subjects and granting user access.
type Center struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}
