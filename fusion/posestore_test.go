package fusion

import "testing"

func TestPoseStore_InitialEntry(t *testing.T) {
	s := NewPoseStore(IdentityPose())
	if s.Len() != 1 {
		t.Fatalf("expected 1 entry after construction, got %d", s.Len())
	}
}

func TestPoseStore_AppendGrows(t *testing.T) {
	s := NewPoseStore(IdentityPose())
	for i := 0; i < 5; i++ {
		s.Append(Pose{R: IdentityMat3(), T: s.Get(-1).T})
	}
	if s.Len() != 6 {
		t.Fatalf("expected 6 entries after 5 appends, got %d", s.Len())
	}
}

func TestPoseStore_OutOfRangeClampsToLast(t *testing.T) {
	s := NewPoseStore(IdentityPose())
	last := Pose{R: IdentityMat3(), T: nonZeroTranslation()}
	s.Append(last)

	got := s.Get(1000)
	if got.T != last.T {
		t.Errorf("Get(1000) = %v, want last entry %v", got.T, last.T)
	}
	gotNeg := s.Get(-5)
	if gotNeg.T != last.T {
		t.Errorf("Get(-5) = %v, want last entry %v", gotNeg.T, last.T)
	}
}

func TestPoseStore_ResetTruncates(t *testing.T) {
	s := NewPoseStore(IdentityPose())
	s.Append(Pose{R: IdentityMat3(), T: nonZeroTranslation()})
	s.Append(Pose{R: IdentityMat3(), T: nonZeroTranslation()})

	initial := IdentityPose()
	s.Reset(initial)
	if s.Len() != 1 {
		t.Fatalf("expected 1 entry after reset, got %d", s.Len())
	}
}
