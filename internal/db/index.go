package db

// StorageType selects the FT index storage backing.
type StorageType string

// Storage backings.
const (
	StorageHash StorageType = "HASH"
	StorageJSON StorageType = "JSON"
)

// IndexFieldType identifies an FT schema field type.
type IndexFieldType string

// Field types.
const (
	IndexFieldText    IndexFieldType = "TEXT"
	IndexFieldTag     IndexFieldType = "TAG"
	IndexFieldNumeric IndexFieldType = "NUMERIC"
	IndexFieldVector  IndexFieldType = "VECTOR"
)

// VectorAlgo selects the vector index algorithm.
type VectorAlgo string

// Vector algorithms.
const (
	VectorFlat VectorAlgo = "FLAT"
	VectorHNSW VectorAlgo = "HNSW"
)

// Distance selects the vector distance metric.
type Distance string

// Distance metrics.
const (
	DistanceCosine Distance = "COSINE"
	DistanceL2     Distance = "L2"
)

// IndexDefinition describes an FT.CREATE invocation.
type IndexDefinition struct {
	Name        string
	StorageType StorageType
	Prefixes    []string
	Fields      []IndexField
}

// IndexField is one schema field of an FT index.
type IndexField struct {
	Name              string
	Alias             string
	Type              IndexFieldType
	TagSeparator      string
	VectorAlgo        VectorAlgo
	VectorDim         int
	VectorDistance    Distance
	VectorM           int
	VectorEFConstruct int
}
