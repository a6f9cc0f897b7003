package faults

// userMessages is the fixed table of caller-facing failure text. No status
// codes, provider names, or internals ever appear here.
var userMessages = map[Kind]string{
	KindAuth:        "The service could not authenticate this request. Please try again later.",
	KindRateLimit:   "Service is busy, please try again in a moment.",
	KindTimeout:     "The request took too long. Please try again.",
	KindServerError: "The service hit a temporary problem. Please try again.",
	KindMalformed:   "The service returned an unusable answer. Please try again.",
	KindValidation:  "This image could not be processed. Please check the file and try again.",
	KindUnknown:     "Something went wrong while processing this image.",
}

// technicalDescriptions is for internal logs only. It must never reach a
// caller-facing response.
var technicalDescriptions = map[Kind]string{
	KindAuth:        "upstream rejected credentials (HTTP 401 / UNAUTHENTICATED)",
	KindRateLimit:   "upstream rate limit hit (HTTP 429 / RESOURCE_EXHAUSTED)",
	KindTimeout:     "call aborted, timed out, or network unreachable",
	KindServerError: "upstream 5xx or internal transport failure",
	KindMalformed:   "upstream response body could not be parsed",
	KindValidation:  "upstream rejected request (HTTP 400/403/404)",
	KindUnknown:     "unclassified upstream failure",
}

// UserMessage returns the fixed non-technical message for a kind.
func UserMessage(kind Kind) string {
	if msg, ok := userMessages[kind]; ok {
		return msg
	}
	return userMessages[KindUnknown]
}

// TechnicalDescription returns the log-only description for a kind.
func TechnicalDescription(kind Kind) string {
	if d, ok := technicalDescriptions[kind]; ok {
		return d
	}
	return technicalDescriptions[KindUnknown]
}
