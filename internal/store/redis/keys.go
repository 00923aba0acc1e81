package redis

// DefaultPrefix namespaces every key written by the engine.
const DefaultPrefix = "vsdesk:"

// keys builds the Redis key names for one namespace.
type keys struct {
	prefix string
}

// VersionKey holds the schema version as a decimal string.
func (k keys) VersionKey() string { return k.prefix + "meta:version" }

// CollectionsKey is the set of declared collection names.
func (k keys) CollectionsKey() string { return k.prefix + "meta:collections" }

// IndexesKey is the hash index name -> field of a collection.
func (k keys) IndexesKey(collection string) string { return k.prefix + "meta:indexes:" + collection }

// RecordsKey is the hash id -> JSON body of a collection.
func (k keys) RecordsKey(collection string) string { return k.prefix + "rec:" + collection }

// EntriesKey is the hash id -> JSON index entries, used to unindex on replace.
func (k keys) EntriesKey(collection string) string { return k.prefix + "ent:" + collection }

// IndexKey is the set of ids whose indexed field has value.
func (k keys) IndexKey(collection, index, value string) string {
	return k.prefix + "idx:" + collection + ":" + index + ":" + value
}

// IndexPattern matches every index set of a collection (SCAN MATCH syntax).
func (k keys) IndexPattern(collection string) string {
	return k.prefix + "idx:" + collection + ":*"
}
