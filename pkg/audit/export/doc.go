// Package export provides decision record exporters for various formats.
//
// # Export Formats
//
// The export package provides exporters for:
//
//   - JSON: Array of decision records, with optional pretty-printing
//   - CSV: Flattened schema with header row and proper escaping
//   - Object store: JSON batches uploaded to an S3-compatible bucket
//
// # JSON Export
//
// The JSON exporter outputs decision records in JSON format:
//
//	// Create JSON exporter with pretty-printing
//	exporter := export.NewJSONExporter(true)
//
//	// Export decisions to stdout
//	err := exporter.Export(ctx, decisions, os.Stdout)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # CSV Export
//
// The CSV exporter outputs decision records in CSV format with proper escaping:
//
//	// Create CSV exporter with header row
//	exporter := export.NewCSVExporter(true)
//
//	// Export decisions to file
//	f, _ := os.Create("decisions.csv")
//	defer f.Close()
//
//	err := exporter.Export(ctx, decisions, f)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Object Store Archival
//
// The object archiver uploads decision batches to an S3-compatible store,
// typically from the retention pruner before old records are deleted:
//
//	archiver, err := export.NewObjectArchiver(&export.ObjectStoreConfig{
//	    Endpoint:  "minio.internal:9000",
//	    AccessKey: "...",
//	    SecretKey: "...",
//	    Bucket:    "decision-archives",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	key, err := archiver.Archive(ctx, decisions)
//
// # Streaming
//
// The JSON and CSV exporters support streaming large result sets without
// loading all records into memory. Records are written to the output writer
// as they arrive on the channel.
//
// # Error Handling
//
// Exporters return ExportError if the export fails:
//
//   - JSON encoding errors
//   - CSV escaping errors
//   - Writer and upload errors
package export
