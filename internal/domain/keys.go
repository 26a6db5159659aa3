package domain

import "fmt"

// KeyPrefix namespaces every key and index this service touches.
const KeyPrefix = "vecmatch:"

// IndexName returns the FT index name of a collection.
func IndexName(collection string) string {
	return fmt.Sprintf("%s%s:idx", KeyPrefix, collection)
}

// DocumentPrefix returns the hash key prefix of a collection's documents.
func DocumentPrefix(collection string) string {
	return fmt.Sprintf("%s%s:", KeyPrefix, collection)
}
