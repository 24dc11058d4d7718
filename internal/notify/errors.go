package notify

import "fmt"

type RequestError struct {
	Body   []byte
	Status int
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("webhook request failed with StatusCode: %d, response: %q", e.Status, string(e.Body))
}
