package chain

import "fmt"

// span is a half-open index range [From, To) into a call slice.
type span struct {
	From int
	To   int
}

// splitSpans splits total items into consecutive spans of at most size.
func splitSpans(total, size int) ([]span, error) {
	if size <= 0 {
		return nil, fmt.Errorf("batch limit must be greater than zero")
	}
	if total < 0 {
		return nil, fmt.Errorf("total must not be negative")
	}

	spans := make([]span, 0, (total+size-1)/size)
	for start := 0; start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		spans = append(spans, span{From: start, To: end})
	}
	return spans, nil
}
