package db

import "gorm.io/gorm"

// RowLock returns the row-locking suffix for pessimistic reads.
//
// SQLite has no FOR UPDATE; its single-writer transactions already
// serialize the critical sections we lock for, so the suffix is empty
// there and present on postgres and mysql.
func RowLock(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	if conn.Dialector.Name() == "sqlite" {
		return ""
	}
	return "FOR UPDATE"
}
