// Package mysql provides the shared MySQL connection pool used by the
// participant, game and economy stores. It encapsulates pool tuning and
// connectivity checks; schema ownership stays with each domain store.
package mysql
