// Package source reads tabular reconciliation input (CSV or XLSX) into rows
// addressed by column name.
//
// # Encodings
//
// CSV exports arrive from several desktop tools. Open tries UTF-8 first, then
// Windows-1252, then ISO-8859-1, and keeps the first encoding whose decoded text
// contains no replacement characters and parses as CSV. A leading byte order mark
// is dropped.
//
// # Locations
//
// Local paths are opened directly. s3://bucket/key locations are downloaded
// through the storage client first.
//
// # Usage
//
//	r, err := source.Open("allotments.csv", source.Options{Limit: 500})
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	if err := source.Require(r, requiredColumns); err != nil {
//	    return err // errors.Is(err, source.ErrMissingColumns)
//	}
//	for {
//	    row, err := r.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    ref := row.Get("mlsfNo")
//	}
package source
