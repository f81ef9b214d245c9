/*
Package records defines the data model shared by the table sources and the read-through cache.

A Record is a schema-less row. A Snapshot is an immutable, ordered set of Records together with
the time it was captured. A Source performs full, unfiltered retrievals of a backing table; the
sub-packages provide Source implementations for DynamoDB, SQL databases (via gorm), pebble,
Cassandra/Scylla and Redis.
*/
package records
