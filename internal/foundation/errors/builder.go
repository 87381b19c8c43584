package errors

// ErrorBuilder provides a fluent API for creating ClassifiedError instances.
type ErrorBuilder struct {
	category ErrorCategory
	severity ErrorSeverity
	retry    RetryStrategy
	message  string
	cause    error
	context  ErrorContext
}

// NewError creates a new ErrorBuilder with the specified category and message.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{
		category: category,
		severity: SeverityError,
		retry:    RetryNever,
		message:  message,
		context:  make(ErrorContext),
	}
}

// WrapError creates a new ErrorBuilder that wraps an existing error.
func WrapError(err error, category ErrorCategory, message string) *ErrorBuilder {
	return NewError(category, message).WithCause(err)
}

// WithCause sets the underlying error.
func (b *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	b.cause = err
	return b
}

// WithCategory overrides the category chosen at construction.
func (b *ErrorBuilder) WithCategory(category ErrorCategory) *ErrorBuilder {
	b.category = category
	return b
}

// WithSeverity sets the error severity.
func (b *ErrorBuilder) WithSeverity(severity ErrorSeverity) *ErrorBuilder {
	b.severity = severity
	return b
}

// WithRetry sets the retry strategy.
func (b *ErrorBuilder) WithRetry(strategy RetryStrategy) *ErrorBuilder {
	b.retry = strategy
	return b
}

// WithContext adds a context key-value pair.
func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.context = b.context.Set(key, value)
	return b
}

// Fatal sets the severity to fatal.
func (b *ErrorBuilder) Fatal() *ErrorBuilder {
	return b.WithSeverity(SeverityFatal)
}

// Warning sets the severity to warning.
func (b *ErrorBuilder) Warning() *ErrorBuilder {
	return b.WithSeverity(SeverityWarning)
}

// Retryable sets the retry strategy to backoff.
func (b *ErrorBuilder) Retryable() *ErrorBuilder {
	return b.WithRetry(RetryBackoff)
}

// UserAction sets the retry strategy to require user action.
func (b *ErrorBuilder) UserAction() *ErrorBuilder {
	return b.WithRetry(RetryUserAction)
}

// Build creates the final ClassifiedError.
func (b *ErrorBuilder) Build() *ClassifiedError {
	return &ClassifiedError{
		category: b.category,
		severity: b.severity,
		retry:    b.retry,
		message:  b.message,
		cause:    b.cause,
		context:  b.context,
	}
}

// Convenience constructors for the pipeline's error taxonomy

// ConfigError creates a configuration error.
func ConfigError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).Fatal()
}

// ValidationError creates a validation error.
func ValidationError(message string) *ErrorBuilder {
	return NewError(CategoryValidation, message).Fatal()
}

// ResolutionError creates an error for an unresolvable commit reference. It aborts the pipeline.
func ResolutionError(message string) *ErrorBuilder {
	return NewError(CategoryResolution, message).Fatal()
}

// IntegrityError creates an error for an expected blob or companion that is missing.
func IntegrityError(message string) *ErrorBuilder {
	return NewError(CategoryIntegrity, message).Fatal()
}

// ClassificationWarning describes a path whose extension has no metadata type.
func ClassificationWarning(message string) *ErrorBuilder {
	return NewError(CategoryClassification, message).Warning()
}

// PolicyViolation describes a non-destructible item targeted for deletion.
func PolicyViolation(message string) *ErrorBuilder {
	return NewError(CategoryPolicy, message).Warning()
}

// PackagingAbort creates an archive assembly error. No partial archive accompanies it.
func PackagingAbort(message string) *ErrorBuilder {
	return NewError(CategoryPackaging, message).Fatal()
}

// SubmissionError creates an auth/network failure raised before or while talking to the platform.
func SubmissionError(message string) *ErrorBuilder {
	return NewError(CategorySubmission, message).Fatal()
}

// DeploymentFailure reports a remote job that completed unsuccessfully.
// The pipeline returns such jobs as results; the CLI turns them into this
// error to set the exit code.
func DeploymentFailure(message string) *ErrorBuilder {
	return NewError(CategoryDeployment, message)
}

// NetworkError creates a network error.
func NetworkError(message string) *ErrorBuilder {
	return NewError(CategoryNetwork, message).Retryable()
}

// FileSystemError creates a filesystem error.
func FileSystemError(message string) *ErrorBuilder {
	return NewError(CategoryFileSystem, message).Retryable()
}

// StorageError creates a history store error.
func StorageError(message string) *ErrorBuilder {
	return NewError(CategoryStorage, message)
}

// InternalError creates an internal error.
func InternalError(message string) *ErrorBuilder {
	return NewError(CategoryInternal, message).Fatal()
}
