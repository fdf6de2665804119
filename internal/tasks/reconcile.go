package tasks

// Reconciliation is the difference between a source and a destination track list.
type Reconciliation struct {
	ToDest           []string // in source, missing from destination; source order
	ToSource         []string // in destination, missing from source; destination order
	ToRemoveFromDest []string // same members as ToSource
}

// Reconcile computes set differences in both directions, keeping each input's order and duplicates.
func Reconcile(source, dest []string) Reconciliation {
	inSource := make(map[string]struct{}, len(source))
	for _, uri := range source {
		inSource[uri] = struct{}{}
	}
	inDest := make(map[string]struct{}, len(dest))
	for _, uri := range dest {
		inDest[uri] = struct{}{}
	}

	r := Reconciliation{ToDest: []string{}, ToSource: []string{}}
	for _, uri := range source {
		if _, ok := inDest[uri]; !ok {
			r.ToDest = append(r.ToDest, uri)
		}
	}
	for _, uri := range dest {
		if _, ok := inSource[uri]; !ok {
			r.ToSource = append(r.ToSource, uri)
		}
	}
	r.ToRemoveFromDest = append([]string{}, r.ToSource...)
	return r
}

// reversed returns a reversed copy of uris.
func reversed(uris []string) []string {
	out := make([]string, len(uris))
	for i, uri := range uris {
		out[len(uris)-1-i] = uri
	}
	return out
}

// chunk splits uris into consecutive batches of at most size.
func chunk(uris []string, size int) [][]string {
	var batches [][]string
	for i := 0; i < len(uris); i += size {
		batches = append(batches, uris[i:min(i+size, len(uris))])
	}
	return batches
}
