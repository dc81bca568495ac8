package service

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"samplevault/internal/blobstore"
	"samplevault/internal/models"
)

func TestAttachCopiesBlobFieldsAndInfersMetadata(t *testing.T) {
	h := newHarness(t, Options{})
	blob := h.upload(t, "reads.fastq.gz", "@r1\nACGT\n+\nIIII\n")

	attachment, err := h.engine.Attachments.Attach(h.ctx, sampleOne, blob.ID)
	require.NoError(t, err)
	require.NotEmpty(t, attachment.ID)
	require.Equal(t, blob.ID, attachment.BlobID)
	require.Equal(t, "reads.fastq.gz", attachment.Filename)
	require.Equal(t, blob.ByteSize, attachment.ByteSize)
	require.Equal(t, blob.Checksum, attachment.Checksum)
	require.Len(t, attachment.Checksum, 64)
	require.Equal(t, models.OriginUpload, attachment.Origin)
	require.Equal(t, models.FormatFastq, attachment.Metadata.Format)
	require.Equal(t, models.CompressionGzip, attachment.Metadata.Compression)

	sample, err := h.store.GetSample(h.ctx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, sample.AttachmentsUpdatedAt)
}

func TestAttachRejectsSameFilenameAndChecksum(t *testing.T) {
	h := newHarness(t, Options{})
	h.attach(t, sampleOne, "notes.txt", "hello")

	again := h.upload(t, "notes.txt", "hello")
	_, err := h.engine.Attachments.Attach(h.ctx, sampleOne, again.ID)
	requireKind(t, err, KindChecksumDuplicate)
	require.Equal(t, ErrCodeChecksumDuplicate, CodeOf(err))
	require.Equal(t, UserError{Path: []string{"attachment", again.ID}, Message: MsgChecksumDuplicate}, ToUserError(err))

	// Same bytes under another name, and another content under the same name,
	// are both distinct files.
	h.attach(t, sampleOne, "copy.txt", "hello")
	h.attach(t, sampleOne, "notes.txt", "hello again")

	// The same file on another attachable is fine.
	_, err = h.engine.Attachments.Attach(h.ctx, sampleTwo, again.ID)
	require.NoError(t, err)

	require.Len(t, h.list(t, sampleOne), 3)
}

func TestAttachUnprocessableBlobs(t *testing.T) {
	h := newHarness(t, Options{})
	empty := h.upload(t, "empty.txt", "")
	missing := h.upload(t, "gone.txt", "soon deleted")
	require.NoError(t, h.blobs.Delete(h.ctx, missing.BlobKey))

	for _, id := range []string{"", "bl-nope", empty.ID, missing.ID} {
		_, err := h.engine.Attachments.Attach(h.ctx, sampleOne, id)
		requireKind(t, err, KindBlobUnprocessable)
		require.Equal(t, ErrCodeBlobUnprocessable, CodeOf(err))
		require.Equal(t, []string{"blob_id", id}, ToUserError(err).Path)
		require.Equal(t, MsgBlobUnprocessable, ToUserError(err).Message)
	}
	require.Empty(t, h.list(t, sampleOne))
}

func TestAttachRequiresExistingTarget(t *testing.T) {
	h := newHarness(t, Options{})
	blob := h.upload(t, "a.txt", "a")

	_, err := h.engine.Attachments.Attach(h.ctx, models.AttachableRef{Type: models.AttachableSample, ID: "s-404"}, blob.ID)
	requireKind(t, err, KindNotFound)

	_, err = h.engine.Attachments.Attach(h.ctx, models.AttachableRef{Type: "Robot", ID: "r-1"}, blob.ID)
	requireKind(t, err, KindInvalidArgument)

	_, err = h.engine.Attachments.AttachBlob(h.ctx, AttachInput{Target: sampleOne, BlobID: blob.ID, Extra: map[string]any{"direction": "forward"}})
	requireKind(t, err, KindInvalidArgument)
}

func TestConcurrentAttachOfSameFileCreatesOneAttachment(t *testing.T) {
	h := newHarness(t, Options{})
	blob := h.upload(t, "race.fastq", "@r\nA\n+\nI\n")

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.engine.Attachments.Attach(h.ctx, sampleOne, blob.ID)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireKind(t, err, KindChecksumDuplicate)
	}
	require.Equal(t, 1, succeeded)
	require.Len(t, h.list(t, sampleOne), 1)
}

func TestDetachProtectedOrigin(t *testing.T) {
	h := newHarness(t, Options{})
	output := h.attachInput(t, AttachInput{Target: workflow, Origin: models.OriginWorkflow}, "contigs.fasta", ">c1\nACGT\n")
	require.True(t, output.Protected())

	err := h.engine.Attachments.Detach(h.ctx, output.ID, DetachOptions{})
	requireKind(t, err, KindProtectedOrigin)
	require.Equal(t, ErrCodeProtectedOrigin, CodeOf(err))
	require.Len(t, h.list(t, workflow), 1)

	require.NoError(t, h.engine.Attachments.Detach(h.ctx, output.ID, DetachOptions{Privileged: true}))
	require.Empty(t, h.list(t, workflow))

	requireKind(t, h.engine.Attachments.Detach(h.ctx, output.ID, DetachOptions{}), KindNotFound)
}

func TestDetachClearsPartnerPairing(t *testing.T) {
	h := newHarness(t, Options{})
	forward := h.attach(t, sampleOne, "lib_R1.fastq", "@f\nA\n+\nI\n")
	reverse := h.attach(t, sampleOne, "lib_R2.fastq", "@r\nT\n+\nI\n")
	require.Equal(t, forward.ID, reverse.Metadata.AssociatedAttachmentID)

	require.NoError(t, h.engine.Attachments.Detach(h.ctx, forward.ID, DetachOptions{}))

	left := h.get(t, reverse.ID)
	require.Empty(t, left.Metadata.Direction)
	require.Empty(t, left.Metadata.Type)
	require.Empty(t, left.Metadata.AssociatedAttachmentID)
	require.Equal(t, models.FormatFastq, left.Metadata.Format)
}

func TestUpdateMetadataMergesExtras(t *testing.T) {
	h := newHarness(t, Options{})
	attachment := h.attach(t, sampleOne, "table.csv", "a,b\n1,2\n")

	updated, err := h.engine.Attachments.UpdateMetadata(h.ctx, attachment.ID, map[string]any{"lane": "3", "run": "r-7"}, DetachOptions{})
	require.NoError(t, err)
	require.Equal(t, "3", updated.Metadata.Extra["lane"])
	require.Equal(t, models.FormatCSV, updated.Metadata.Format)

	updated, err = h.engine.Attachments.UpdateMetadata(h.ctx, attachment.ID, map[string]any{"lane": nil}, DetachOptions{})
	require.NoError(t, err)
	require.NotContains(t, updated.Metadata.Extra, "lane")
	require.Equal(t, "r-7", updated.Metadata.Extra["run"])

	_, err = h.engine.Attachments.UpdateMetadata(h.ctx, attachment.ID, map[string]any{"format": "fasta"}, DetachOptions{})
	requireKind(t, err, KindInvalidArgument)

	protected := h.attachInput(t, AttachInput{Target: workflow, Origin: models.OriginWorkflow}, "report.json", "{}")
	_, err = h.engine.Attachments.UpdateMetadata(h.ctx, protected.ID, map[string]any{"k": "v"}, DetachOptions{})
	requireKind(t, err, KindProtectedOrigin)
}

func TestOpenStreamsContent(t *testing.T) {
	h := newHarness(t, Options{})
	attachment := h.attach(t, projectP1, "readme.txt", "project notes")

	c, err := h.engine.Attachments.Open(h.ctx, attachment.ID)
	require.NoError(t, err)
	require.Equal(t, "readme.txt", c.Filename)
	require.Equal(t, int64(len("project notes")), c.SizeBytes)
	require.True(t, strings.HasPrefix(c.ContentType, "text/plain"))
	require.NoError(t, c.Reader.Close())

	require.Equal(t, "project notes", h.content(t, attachment.ID))

	_, err = h.engine.Attachments.Open(h.ctx, "missing")
	requireKind(t, err, KindNotFound)
}

func TestGCBlobsKeepsSharedObjects(t *testing.T) {
	h := newHarness(t, Options{})
	kept := h.attach(t, sampleOne, "a.txt", "shared bytes")
	h.upload(t, "b.txt", "shared bytes")
	h.upload(t, "lonely.txt", "nobody wants me")
	require.Equal(t, 2, h.blobs.Len())

	dry, err := h.engine.Attachments.GCBlobs(h.ctx, BlobGCOptions{})
	require.NoError(t, err)
	require.True(t, dry.DryRun)
	require.Equal(t, 2, dry.CandidateCount)
	require.Equal(t, int64(len("shared bytes")+len("nobody wants me")), dry.ReclaimedBytes)
	require.Equal(t, 2, h.blobs.Len())

	res, err := h.engine.Attachments.GCBlobs(h.ctx, BlobGCOptions{BatchSize: 1, Apply: true})
	require.NoError(t, err)
	require.False(t, res.DryRun)
	require.Equal(t, 2, res.DeletedCount)
	require.Zero(t, res.FailedCount)

	// The shared key still backs the attached blob.
	require.Equal(t, 1, h.blobs.Len())
	require.Equal(t, "shared bytes", h.content(t, kept.ID))

	again, err := h.engine.Attachments.GCBlobs(h.ctx, BlobGCOptions{Apply: true})
	require.NoError(t, err)
	require.Zero(t, again.CandidateCount)
}

func TestGCBlobsSparesRecentUploads(t *testing.T) {
	h := newHarness(t, Options{})
	fresh := h.upload(t, "fresh.fastq", "@f\nACGT\n+\nIIII\n")

	dry, err := h.engine.Attachments.GCBlobs(h.ctx, BlobGCOptions{MinAge: 24 * time.Hour})
	require.NoError(t, err)
	require.Zero(t, dry.CandidateCount)

	res, err := h.engine.Attachments.GCBlobs(h.ctx, BlobGCOptions{MinAge: 24 * time.Hour, Apply: true})
	require.NoError(t, err)
	require.Zero(t, res.DeletedCount)
	require.Equal(t, 1, h.blobs.Len())

	attachment, err := h.engine.Attachments.Attach(h.ctx, sampleOne, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, "@f\nACGT\n+\nIIII\n", h.content(t, attachment.ID))
}

func TestGCBlobsSkipsBlobAttachedAfterListing(t *testing.T) {
	h := newHarness(t, Options{})
	blob := h.upload(t, "late.txt", "claimed at the last moment")

	candidates, err := h.store.ListUnreferencedBlobs(h.ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	attachment, err := h.engine.Attachments.Attach(h.ctx, sampleOne, blob.ID)
	require.NoError(t, err)

	deleted, err := h.engine.Attachments.collectBlob(h.ctx, candidates[0])
	require.NoError(t, err)
	require.False(t, deleted)
	require.Equal(t, 1, h.blobs.Len())
	require.Equal(t, "claimed at the last moment", h.content(t, attachment.ID))
}

func TestRegisterUploadDetectsCollectedContent(t *testing.T) {
	h := newHarness(t, Options{})
	blobs := &vanishingBlobStore{Memory: h.blobs}
	svc, err := NewAttachmentService(h.store, blobs, AttachmentServiceOptions{})
	require.NoError(t, err)

	_, err = svc.RegisterUpload(h.ctx, "gone.txt", "", strings.NewReader("collected"))
	requireKind(t, err, KindInternal)
}

// vanishingBlobStore loses every object right after it is written, as if a
// concurrent GC run removed it.
type vanishingBlobStore struct {
	*blobstore.Memory
}

func (v *vanishingBlobStore) Put(ctx context.Context, r io.Reader) (blobstore.BlobPutResult, error) {
	res, err := v.Memory.Put(ctx, r)
	if err != nil {
		return res, err
	}
	return res, v.Memory.Delete(ctx, res.BlobKey)
}

func TestRegisterUploadValidatesFilename(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.engine.Attachments.RegisterUpload(h.ctx, "  ", "", strings.NewReader("x"))
	requireKind(t, err, KindInvalidArgument)

	blob, err := h.engine.Attachments.RegisterUpload(h.ctx, "/tmp/upload/reads.fq", "", strings.NewReader("x"))
	require.NoError(t, err)
	require.Equal(t, "reads.fq", blob.Filename)
	require.Equal(t, "memory", blob.StorageBackend)
	require.True(t, strings.HasPrefix(blob.ID, "bl-"))
}
