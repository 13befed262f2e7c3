// Package redact converts raw engine errors into errors safe to
// surface outside the process.
//
// Every error is first classified into a category (database, timeout,
// validation, ...) by a pattern-based classifier, then wrapped for the
// deployment environment:
//
//   - production: a PublicError carrying only the category and its
//     fixed generic message. The original error text never appears.
//   - staging, development: a DebugError carrying the public shape
//     plus the original message and unwrap chain.
//
// Environment names the redactor does not recognize are treated as
// production, so a typo in configuration fails closed.
//
// # Usage
//
//	redactor := redact.NewRedactor()
//
//	err := store.Query(ctx, q)
//	if err != nil {
//		return redactor.Classify(err, redact.EnvProduction)
//	}
//
// The classifier is replaceable for callers with their own error
// conventions:
//
//	redactor.SetClassifier(func(err error) redact.Category {
//		var se *audit.StorageError
//		if errors.As(err, &se) {
//			return redact.CategoryDatabase
//		}
//		return redact.CategoryInternal
//	})
package redact
