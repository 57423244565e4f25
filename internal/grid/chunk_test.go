package grid

import "testing"

func TestChunkSetCommit(t *testing.T) {
	c := NewChunk()
	if !c.Empty() {
		t.Fatalf("new chunk should be empty")
	}

	c.Set(0, 0, 'a')
	if c.Empty() {
		t.Fatalf("chunk with pending edit should not be empty")
	}
	if !c.Modified() {
		t.Fatalf("chunk with pending edit should be modified")
	}

	committed := c.CommitChanges()
	if committed.Get(0, ' ') != 'a' {
		t.Fatalf("committed diff missing the edit")
	}
	if c.Modified() {
		t.Fatalf("chunk should no longer be modified after commit")
	}
	if c.AsDiff().Get(0, ' ') != 'a' {
		t.Fatalf("committed content missing the edit")
	}
}

func TestChunkDeleteNeverInContent(t *testing.T) {
	c := NewChunk()
	c.Set(0, 0, 'a')
	c.CommitChanges()
	c.Delete(0, 0)
	c.CommitChanges()

	if c.AsDiff().Get(0, 'x') != 'x' {
		t.Fatalf("deleted cell should be absent from committed content, not space")
	}
}

func TestChunkDropChanges(t *testing.T) {
	c := NewChunk()
	c.Set(0, 0, 'a')
	c.DropChanges()
	if c.Modified() {
		t.Fatalf("dropped changes should leave chunk unmodified")
	}
	if !c.AsDiff().Empty() {
		t.Fatalf("dropped changes should not appear in observable state")
	}
}

func TestChunkImageRoundTrip(t *testing.T) {
	c := NewChunk()
	c.Set(0, 0, 'a')
	c.Set(Width-1, Height-1, 'z')
	c.CommitChanges()

	image := c.Image()
	if len(image) != Width*Height {
		t.Fatalf("image length = %d, want %d", len(image), Width*Height)
	}

	restored := NewChunkFromImage(image)
	if !restored.AsDiff().Equal(c.AsDiff()) {
		t.Fatalf("restored chunk does not match original: got %v, want %v",
			restored.AsDiff().ToMap(), c.AsDiff().ToMap())
	}
}

func TestChunkAge(t *testing.T) {
	c := NewChunk()
	if c.Age() < 0 {
		t.Fatalf("age should be non-negative")
	}
}
