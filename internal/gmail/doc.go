// Package gmail reads a user's sent mail for style profiling.
//
// It lists sent messages for a date range, decodes their bodies (plain text
// preferred, HTML reduced to text) and keeps only what the user wrote:
// quoted replies, forwarded headers and signatures are dropped.
//
// Example usage:
//
//	client, err := gmail.NewClient(ctx, metrics, option.WithHTTPClient(httpClient))
//	if err != nil {
//	    return err
//	}
//
//	query := gmail.SentQuery("2014/01/01", "2022/01/01")
//	err = client.ForeachSent(ctx, query, 500, func(e gmail.SentEmail) error {
//	    _, err := io.WriteString(w, e.Format())
//	    return err
//	})
package gmail
