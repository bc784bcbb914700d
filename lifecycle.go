package densefusion

// Reset clears the TSDF and color volumes to their empty state, truncates
// the pose store to its initial entry, and rewinds global_time to 0. Called
// externally or automatically when ICP hits a singular normal matrix.
func (t *Tracker) Reset() {
	t.volume.Reset()
	t.poseStore.Reset(t.initialPose)
	t.globalTime = 0
	t.havePredPyr = false
}
