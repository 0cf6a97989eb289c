package apierr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eastmoney-sub000/factord/internal/upstream"
)

func TestFromUpstream_MapsKnownKinds(t *testing.T) {
	cases := []struct {
		kind upstream.Kind
		want Code
	}{
		{upstream.RateLimited, CodeRateLimited},
		{upstream.NoKeyAvailable, CodeRateLimited},
		{upstream.Unavailable, CodeUnavailable},
		{upstream.Transient, CodeUnavailable},
		{upstream.NotFound, CodeNotFound},
		{upstream.InvalidArgument, CodeInvalidArgument},
		{upstream.Deadline, CodeTimeout},
	}
	for _, c := range cases {
		err := upstream.NewError(c.kind, "akshare", errors.New("boom"))
		got := FromUpstream(err)
		assert.Equal(t, c.want, got.Code, "kind %s", c.kind)
	}
}

func TestFromUpstream_FallsBackToInternal(t *testing.T) {
	got := FromUpstream(errors.New("some other failure"))
	assert.Equal(t, CodeInternal, got.Code)
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(got.Code))
}

func TestHTTPStatus_CoversEveryCode(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(CodeRateLimited))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(CodeUnavailable))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(CodeNotFound))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(CodeInvalidArgument))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(CodeTimeout))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(CodeInternal))
}
