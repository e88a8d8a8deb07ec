package entity

import "time"

type PerformanceMode string

const (
	PerformanceModeFast     PerformanceMode = "fast"
	PerformanceModeAccurate PerformanceMode = "accurate"
)

// ImageFormatNV21 is the only frame layout the bridge accepts.
const ImageFormatNV21 = "nv21"

// DetectorOptions configures a detector handle. It is fixed for the
// lifetime of the handle built from it.
type DetectorOptions struct {
	PerformanceMode       PerformanceMode `json:"mode" msgpack:"mode"`
	ClassificationEnabled bool            `json:"enableClassification" msgpack:"enableClassification"`
	LandmarksEnabled      bool            `json:"enableLandmarks" msgpack:"enableLandmarks"`
	ContoursEnabled       bool            `json:"enableContours" msgpack:"enableContours"`
	TrackingEnabled       bool            `json:"enableTracking" msgpack:"enableTracking"`
	MinFaceSize           float32         `json:"minFaceSize" msgpack:"minFaceSize"`
}

// InputImage is a single NV21 frame together with its geometry.
type InputImage struct {
	Bytes    []byte
	Width    int
	Height   int
	Rotation int
	Format   string
}

// NV21Size is the minimum payload length of a width x height NV21 frame:
// a full luma plane followed by interleaved VU samples at quarter resolution.
func NV21Size(width, height int) int {
	chromaW := (width + 1) / 2
	chromaH := (height + 1) / 2
	return width*height + 2*chromaW*chromaH
}

// Point is serialised as an [x, y] pair.
type Point [2]float64

func NewPoint(x, y float64) Point {
	return Point{x, y}
}

func (p Point) X() float64 { return p[0] }
func (p Point) Y() float64 { return p[1] }

type Rect struct {
	Left   int `json:"left" msgpack:"left"`
	Top    int `json:"top" msgpack:"top"`
	Right  int `json:"right" msgpack:"right"`
	Bottom int `json:"bottom" msgpack:"bottom"`
}

type LandmarkType string

const (
	LandmarkBottomMouth LandmarkType = "bottomMouth"
	LandmarkRightMouth  LandmarkType = "rightMouth"
	LandmarkLeftMouth   LandmarkType = "leftMouth"
	LandmarkRightEye    LandmarkType = "rightEye"
	LandmarkLeftEye     LandmarkType = "leftEye"
	LandmarkRightEar    LandmarkType = "rightEar"
	LandmarkLeftEar     LandmarkType = "leftEar"
	LandmarkRightCheek  LandmarkType = "rightCheek"
	LandmarkLeftCheek   LandmarkType = "leftCheek"
	LandmarkNoseBase    LandmarkType = "noseBase"
)

// LandmarkTypes lists every landmark key reported for a face.
var LandmarkTypes = []LandmarkType{
	LandmarkBottomMouth,
	LandmarkRightMouth,
	LandmarkLeftMouth,
	LandmarkRightEye,
	LandmarkLeftEye,
	LandmarkRightEar,
	LandmarkLeftEar,
	LandmarkRightCheek,
	LandmarkLeftCheek,
	LandmarkNoseBase,
}

type ContourType string

const (
	ContourFace               ContourType = "face"
	ContourLeftEyebrowTop     ContourType = "leftEyebrowTop"
	ContourLeftEyebrowBottom  ContourType = "leftEyebrowBottom"
	ContourRightEyebrowTop    ContourType = "rightEyebrowTop"
	ContourRightEyebrowBottom ContourType = "rightEyebrowBottom"
	ContourLeftEye            ContourType = "leftEye"
	ContourRightEye           ContourType = "rightEye"
	ContourUpperLipTop        ContourType = "upperLipTop"
	ContourUpperLipBottom     ContourType = "upperLipBottom"
	ContourLowerLipTop        ContourType = "lowerLipTop"
	ContourLowerLipBottom     ContourType = "lowerLipBottom"
	ContourNoseBridge         ContourType = "noseBridge"
	ContourNoseBottom         ContourType = "noseBottom"
	ContourLeftCheek          ContourType = "leftCheek"
	ContourRightCheek         ContourType = "rightCheek"
)

// FeatureContourTypes are the per-feature polylines. The face outline is
// reported alongside them under ContourFace.
var FeatureContourTypes = []ContourType{
	ContourLeftEyebrowTop,
	ContourLeftEyebrowBottom,
	ContourRightEyebrowTop,
	ContourRightEyebrowBottom,
	ContourLeftEye,
	ContourRightEye,
	ContourUpperLipTop,
	ContourUpperLipBottom,
	ContourLowerLipTop,
	ContourLowerLipBottom,
	ContourNoseBridge,
	ContourNoseBottom,
	ContourLeftCheek,
	ContourRightCheek,
}

// ContourTypes lists every contour key reported for a face.
var ContourTypes = append([]ContourType{ContourFace}, FeatureContourTypes...)

// DetectedFace is the normalised record returned to callers. Optional
// scalars are nil when the engine did not supply them; every landmark and
// contour key is always present, with a nil value when not detected.
type DetectedFace struct {
	Rect                    Rect                    `json:"rect" msgpack:"rect"`
	HeadEulerAngleX         float32                 `json:"headEulerAngleX" msgpack:"headEulerAngleX"`
	HeadEulerAngleY         float32                 `json:"headEulerAngleY" msgpack:"headEulerAngleY"`
	HeadEulerAngleZ         float32                 `json:"headEulerAngleZ" msgpack:"headEulerAngleZ"`
	SmilingProbability      *float32                `json:"smilingProbability,omitempty" msgpack:"smilingProbability,omitempty"`
	LeftEyeOpenProbability  *float32                `json:"leftEyeOpenProbability,omitempty" msgpack:"leftEyeOpenProbability,omitempty"`
	RightEyeOpenProbability *float32                `json:"rightEyeOpenProbability,omitempty" msgpack:"rightEyeOpenProbability,omitempty"`
	TrackingID              *int                    `json:"trackingId,omitempty" msgpack:"trackingId,omitempty"`
	Landmarks               map[LandmarkType]*Point `json:"landmarks" msgpack:"landmarks"`
	Contours                map[ContourType][]Point `json:"contours" msgpack:"contours"`
}

// DetectorSession describes a live detector handle.
type DetectorSession struct {
	ID        string          `json:"id"`
	Options   DetectorOptions `json:"options"`
	CreatedAt time.Time       `json:"created_at"`
	LastUsed  time.Time       `json:"last_used"`
	InFlight  int             `json:"in_flight"`
}
