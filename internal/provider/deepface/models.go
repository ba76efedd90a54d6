package deepface

// RepresentRequest for POST /represent
type RepresentRequest struct {
	Img              string `json:"img"`               // data URI with base64 payload
	ModelName        string `json:"model_name"`        // "Facenet" yields 128-D vectors
	DetectorBackend  string `json:"detector_backend"`  // "mtcnn", "retinaface", ...
	EnforceDetection bool   `json:"enforce_detection"` // false: no face is an empty result, not a 400
	Align            bool   `json:"align"`
}

// RepresentResponse from POST /represent
type RepresentResponse struct {
	Results []RepresentResult `json:"results"`
}

type RepresentResult struct {
	Embedding      []float64  `json:"embedding"`
	FacialArea     FacialArea `json:"facial_area"`
	FaceConfidence float64    `json:"face_confidence"`
}

type FacialArea struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}
