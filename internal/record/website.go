package record

// Website Protocol
// 一次识别到的网站访问, 上报给后端

const (
	SourceTLS        = "tls"
	SourceHTTP       = "http"
	SourceUnresolved = "unresolved"
)

// Website is the event posted to the backend for every detected host.
type Website struct {
	Username string `json:"username"`
	Hostname string `json:"hostname"`
	Website  string `json:"website"`
	DstIPStr string `json:"ip_address"`
	SrcIPStr string `json:"source_ip"`

	// Source tells which extractor produced Website. Not sent.
	Source string `json:"-"`
}

// Identity names the machine doing the capture.
type Identity struct {
	Username string
	Hostname string
}

// NewWebsite fills a Website for the capturing machine id.
func NewWebsite(id Identity, website, source, srcIP, dstIP string) Website {
	return Website{
		Username: id.Username,
		Hostname: id.Hostname,
		Website:  website,
		DstIPStr: dstIP,
		SrcIPStr: srcIP,
		Source:   source,
	}
}
