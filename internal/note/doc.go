// Package note stores notes in the encrypted database.
//
// Every query goes through the database package's Connection, so the
// readiness check and deferred extension loading run before the first note
// is read. Rows come back as generic column maps and are mapped to Note here.
package note
