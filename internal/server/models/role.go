package models

// Role is an access-control label assigned to users many-to-many.
// Code is the unique machine name checked by authorization; Name and
// Description are display metadata.
type Role struct {
	ID          string
	Code        string
	Name        string
	Description string
}
