package transcoder

// JobState is the lifecycle state reported for a transcode job.
type JobState string

const (
	JobStateQueued     JobState = "Queued"
	JobStateScheduled  JobState = "Scheduled"
	JobStateProcessing JobState = "Processing"
	JobStateCanceling  JobState = "Canceling"
	JobStateFinished   JobState = "Finished"
	JobStateError      JobState = "Error"
	JobStateCanceled   JobState = "Canceled"
)

// Terminal reports whether no further state changes will happen.
func (s JobState) Terminal() bool {
	return s == JobStateFinished || s == JobStateError || s == JobStateCanceled
}

// Resource states of a streaming endpoint.
const (
	EndpointRunning  = "Running"
	EndpointStopped  = "Stopped"
	EndpointStarting = "Starting"
)

const (
	odataBuiltInPreset = "#Microsoft.Media.BuiltInStandardEncoderPreset"
	odataJobInputHTTP  = "#Microsoft.Media.JobInputHttp"
	odataJobOutput     = "#Microsoft.Media.JobOutputAsset"
)

// Transform is a named encoding recipe.
type Transform struct {
	Name       string              `json:"name,omitempty"`
	Properties TransformProperties `json:"properties"`
}

// TransformProperties lists the outputs a transform produces.
type TransformProperties struct {
	Outputs []TransformOutput `json:"outputs"`
}

// TransformOutput selects the preset for one output.
type TransformOutput struct {
	Preset Preset `json:"preset"`
}

// Preset names a built-in encoder preset.
type Preset struct {
	ODataType  string `json:"@odata.type"`
	PresetName string `json:"presetName"`
}

// Asset is a container of transcoded media.
type Asset struct {
	Name       string          `json:"name,omitempty"`
	Properties AssetProperties `json:"properties"`
}

// AssetProperties describes where an asset's files are stored.
type AssetProperties struct {
	AssetID            string `json:"assetId,omitempty"`
	Container          string `json:"container,omitempty"`
	StorageAccountName string `json:"storageAccountName,omitempty"`
}

// Job is a transcode job submitted against a transform.
type Job struct {
	Name       string        `json:"name,omitempty"`
	Properties JobProperties `json:"properties"`
}

// JobProperties holds the job input, outputs and state.
type JobProperties struct {
	State   JobState    `json:"state,omitempty"`
	Input   JobInput    `json:"input"`
	Outputs []JobOutput `json:"outputs"`
}

// JobInput reads source media over HTTP.
type JobInput struct {
	ODataType string   `json:"@odata.type"`
	Files     []string `json:"files,omitempty"`
}

// JobOutput writes into a named asset.
type JobOutput struct {
	ODataType string    `json:"@odata.type"`
	AssetName string    `json:"assetName"`
	State     JobState  `json:"state,omitempty"`
	Error     *JobError `json:"error,omitempty"`
}

// JobError is the backend's failure detail for an output.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FirstError returns the first output error, or nil.
func (j *Job) FirstError() *JobError {
	for _, o := range j.Properties.Outputs {
		if o.Error != nil {
			return o.Error
		}
	}
	return nil
}

// StreamingLocator grants playback access to an asset.
type StreamingLocator struct {
	Name       string                     `json:"name,omitempty"`
	Properties StreamingLocatorProperties `json:"properties"`
}

// StreamingLocatorProperties binds an asset to a streaming policy.
type StreamingLocatorProperties struct {
	AssetName           string `json:"assetName"`
	StreamingPolicyName string `json:"streamingPolicyName"`
	StreamingLocatorID  string `json:"streamingLocatorId,omitempty"`
}

// StreamingEndpoint serves manifests and segments.
type StreamingEndpoint struct {
	Name       string                      `json:"name,omitempty"`
	Properties StreamingEndpointProperties `json:"properties"`
}

// StreamingEndpointProperties reports the host and run state of an endpoint.
type StreamingEndpointProperties struct {
	HostName      string `json:"hostName"`
	ResourceState string `json:"resourceState"`
}

// ListPathsResponse lists the relative manifest and download paths of a locator.
type ListPathsResponse struct {
	StreamingPaths []StreamingPath `json:"streamingPaths"`
	DownloadPaths  []string        `json:"downloadPaths"`
}

// StreamingPath groups paths by protocol.
type StreamingPath struct {
	StreamingProtocol string   `json:"streamingProtocol"`
	EncryptionScheme  string   `json:"encryptionScheme"`
	Paths             []string `json:"paths"`
}
