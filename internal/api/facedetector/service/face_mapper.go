package faceDetectorService

import (
	"FaceBridge/internal/entity"
	"FaceBridge/pkg/engine"
)

// MapFaces normalises engine results, keeping the engine's order.
func MapFaces(faces []engine.Face) []entity.DetectedFace {
	detected := make([]entity.DetectedFace, 0, len(faces))
	for i := range faces {
		detected = append(detected, MapFace(&faces[i]))
	}
	return detected
}

// MapFace copies a single engine face. Every landmark and contour key is
// present in the output; undetected ones map to nil.
func MapFace(face *engine.Face) entity.DetectedFace {
	detected := entity.DetectedFace{
		Rect:                    face.BoundingBox,
		HeadEulerAngleX:         face.HeadEulerAngleX,
		HeadEulerAngleY:         face.HeadEulerAngleY,
		HeadEulerAngleZ:         face.HeadEulerAngleZ,
		SmilingProbability:      copyFloat(face.SmilingProbability),
		LeftEyeOpenProbability:  copyFloat(face.LeftEyeOpenProbability),
		RightEyeOpenProbability: copyFloat(face.RightEyeOpenProbability),
		TrackingID:              copyInt(face.TrackingID),
		Landmarks:               make(map[entity.LandmarkType]*entity.Point, len(entity.LandmarkTypes)),
		Contours:                make(map[entity.ContourType][]entity.Point, len(entity.ContourTypes)),
	}

	for _, landmarkType := range entity.LandmarkTypes {
		point, ok := face.Landmark(landmarkType)
		if !ok {
			detected.Landmarks[landmarkType] = nil
			continue
		}
		position := point
		detected.Landmarks[landmarkType] = &position
	}

	for _, contourType := range entity.ContourTypes {
		points, ok := face.Contour(contourType)
		if !ok {
			detected.Contours[contourType] = nil
			continue
		}
		detected.Contours[contourType] = append(make([]entity.Point, 0, len(points)), points...)
	}

	return detected
}

func copyFloat(v *float32) *float32 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
