package backend

import "fmt"

// NetworkError reports a transport failure or a non-2xx response.
// StatusCode is zero for transport failures.
type NetworkError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend: %s: HTTP error! status: %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("backend: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError reports a response body that does not match the expected shape.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("backend: %s: decode response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NotFoundError reports an unknown conversation or document id.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("backend: %s %q not found", e.Resource, e.ID)
}

// UploadError wraps the failure of a file or filing upload.
type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("backend: upload %s: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
