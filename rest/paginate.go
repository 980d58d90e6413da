package rest

// PageFunc fetches the page identified by cursor ("" requests the first page)
// and returns the page's items together with the cursor for the next page.
// An empty next cursor ends the iteration. The cursor is opaque to the loop -
// Airtable threads an offset token through it, Mariana Tek a fully-formed
// 'next' URL.
type PageFunc[T any] func(cursor string) ([]T, string, error)

// FetchAllPages accumulates the items of every page until the page function
// returns an empty cursor. A max of 0 imposes no cap; otherwise iteration
// stops once max items have been accumulated and the result is truncated to
// exactly max.
func FetchAllPages[T any](page PageFunc[T], max int) ([]T, error) {
	all := []T{}
	cursor := ""

	for {
		items, next, err := page(cursor)
		if err != nil {
			return nil, err
		}

		all = append(all, items...)

		if max > 0 && len(all) >= max {
			return all[:max], nil
		}

		if next == "" {
			return all, nil
		}

		cursor = next
	}
}
