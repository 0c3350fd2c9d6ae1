// Package msgs defines the wire messages published by the daemon.
// Image and IMU payloads are msgpack-encoded; control and diagnostic
// payloads stay JSON for easy inspection.
package msgs

import (
	"github.com/vmihailenco/msgpack/v5"
)

// CameraInfo is the calibration metadata attached to every image message
type CameraInfo struct {
	FrameID string     `msgpack:"frame_id"`
	Width   int        `msgpack:"width"`
	Height  int        `msgpack:"height"`
	K       [9]float64 `msgpack:"k"` // 3x3 intrinsic matrix, row-major
	D       []float64  `msgpack:"d"` // distortion, empty for rectified images
	Model   string     `msgpack:"model"`
}

// Image is one published image frame
type Image struct {
	FrameID  string     `msgpack:"frame_id"`
	Stamp    int64      `msgpack:"stamp"` // capture time, unix nanoseconds
	Seq      uint64     `msgpack:"seq"`
	TraceID  string     `msgpack:"trace_id"`
	Width    int        `msgpack:"width"`
	Height   int        `msgpack:"height"`
	Step     int        `msgpack:"step"`
	Encoding string     `msgpack:"encoding"` // bgr8 or mono8
	Data     []byte     `msgpack:"data"`
	Info     CameraInfo `msgpack:"info"`
}

// Marshal encodes the image message
func (m *Image) Marshal() ([]byte, error) { return msgpack.Marshal(m) }

// UnmarshalImage decodes an image message
func UnmarshalImage(data []byte) (*Image, error) {
	var m Image
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Imu is one published IMU sample
type Imu struct {
	FrameID            string     `msgpack:"frame_id"`
	Stamp              int64      `msgpack:"stamp"`
	Seq                uint64     `msgpack:"seq"`
	Orientation        [4]float64 `msgpack:"orientation"` // quaternion x,y,z,w
	AngularVelocity    [3]float64 `msgpack:"angular_velocity"`
	LinearAcceleration [3]float64 `msgpack:"linear_acceleration"`
}

// Marshal encodes the IMU message
func (m *Imu) Marshal() ([]byte, error) { return msgpack.Marshal(m) }

// UnmarshalImu decodes an IMU message
func UnmarshalImu(data []byte) (*Imu, error) {
	var m Imu
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Temperature is the low-frequency scalar temperature message
type Temperature struct {
	FrameID string  `msgpack:"frame_id"`
	Stamp   int64   `msgpack:"stamp"`
	Celsius float64 `msgpack:"celsius"`
}

// Marshal encodes the temperature message
func (m *Temperature) Marshal() ([]byte, error) { return msgpack.Marshal(m) }

// FrameIDs are the coordinate frame names derived once from the camera
// name after a successful open
type FrameIDs struct {
	CameraLink   string
	CameraCenter string
	Optical      string
	Imu          string
}

// DeriveFrameIDs computes the frame naming convention for a camera
func DeriveFrameIDs(cameraName string) FrameIDs {
	return FrameIDs{
		CameraLink:   cameraName + "_camera_link",
		CameraCenter: cameraName + "_camera_center",
		Optical:      cameraName + "_optical_frame",
		Imu:          cameraName + "_imu_link",
	}
}
