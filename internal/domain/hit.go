package domain

// Entry is one chunk and its vector, the unit stored in a collection.
type Entry struct {
	Text   string
	Vector []float32
}

// Hit is a single nearest-neighbour result. Higher Score is closer.
type Hit struct {
	Text  string
	Score float64
}
