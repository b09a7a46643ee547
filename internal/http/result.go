package httpapi

const (
	ResultSuccess      = 2000
	ResultError        = -1
	ResultUnauthorized = 40100
)

// Result JSON envelope of every sync API response. Type is "success" or
// "error"; Code is ResultSuccess only when the operation completed.
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

func Ok[T any](result T) Result[T] {
	return Success("ok", result)
}

func Success[T any](message string, result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: message, Result: result}
}

func Fail(message string) Result[any] {
	return failWithCode(ResultError, message)
}

func Unauthorized() Result[any] {
	return failWithCode(ResultUnauthorized, "unauthorized")
}

func failWithCode(code int, message string) Result[any] {
	return Result[any]{Code: code, Type: "error", Message: message}
}
