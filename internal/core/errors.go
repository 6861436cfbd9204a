package core

import "fmt"

// HostDisabledError is returned when a run is requested for a disabled host.
type HostDisabledError struct {
	HostID int
}

func (e *HostDisabledError) Error() string {
	return fmt.Sprintf("host %d is disabled", e.HostID)
}

func NewHostDisabledError(hostID int) *HostDisabledError {
	return &HostDisabledError{HostID: hostID}
}

// ContainerNotFoundError is returned when a single-container run names a container the
// host does not have.
type ContainerNotFoundError struct {
	HostID int
	Name   string
}

func (e *ContainerNotFoundError) Error() string {
	return fmt.Sprintf("container %s not found on host %d", e.Name, e.HostID)
}

func NewContainerNotFoundError(hostID int, name string) *ContainerNotFoundError {
	return &ContainerNotFoundError{HostID: hostID, Name: name}
}

// CaptureError is returned when the recreate configuration of a container cannot be read
// from its inspect document.
type CaptureError struct {
	Container string
	Message   string
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture config of %s: %s", e.Container, e.Message)
}

func NewCaptureError(container, message string) *CaptureError {
	return &CaptureError{Container: container, Message: message}
}
