package fsm

// ImageRequest is the FSM input
type ImageRequest struct {
	// Href is the image reference (http(s), s3 or file scheme).
	Href string
	// Checksum and ChecksumAlgo guard the download; empty disables the
	// comparison.
	Checksum     string
	ChecksumAlgo string
	// ExpectedFormat, when set, must match the inspected format.
	ExpectedFormat string
	// OutputPath is where the normalized raw image lands.
	OutputPath string
}

// ImageResponse is the FSM output (accumulated across transitions)
type ImageResponse struct {
	// From CheckDB
	ImageID int64

	// From Fetch
	SHA256    string
	StagePath string

	// From Inspect
	Format string

	// From Convert
	OutputPath string

	// From Complete/Failed
	Status       string
	ErrorMessage string
}

// State names
const (
	StateCheckDB  = "check_db"
	StateFetch    = "fetch"
	StateInspect  = "inspect"
	StateConvert  = "convert"
	StateComplete = "complete"
	StateFailed   = "failed"
)
