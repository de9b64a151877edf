package protocol

// State is one step of the per-connection state machine. Each variant
// carries exactly what the next step needs.
type State interface {
	state()
}

// SendReady announces that the server will take another transfer.
type SendReady struct{}

// RecvFilename waits for the filename field.
type RecvFilename struct{}

// RecvSize waits for the declared size field.
type RecvSize struct {
	Filename string
}

// RecvChecksum waits for the declared checksum field.
type RecvChecksum struct {
	Filename string
	Size     int64
}

// ResumeNegotiate inspects any existing artifact and tells the client where
// to resume.
type ResumeNegotiate struct {
	Request Request
}

// DataPhase appends payload bytes until Received reaches the declared size.
type DataPhase struct {
	Request  Request
	Path     string
	Offset   int64
	Received int64
}

// Verify checksums the artifact over [0, declared size).
type Verify struct {
	Request Request
	Path    string
	Offset  int64
}

// Terminated ends the connection. Cause is never nil.
type Terminated struct {
	Cause error
}

func (SendReady) state()       {}
func (RecvFilename) state()    {}
func (RecvSize) state()        {}
func (RecvChecksum) state()    {}
func (ResumeNegotiate) state() {}
func (DataPhase) state()       {}
func (Verify) state()          {}
func (Terminated) state()      {}
