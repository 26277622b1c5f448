package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	out  *ssm.GetParameterOutput
	err  error
	last *ssm.GetParameterInput
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.last = in
	return f.out, f.err
}

func value(v string) *ssm.GetParameterOutput {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: aws.String("p"), Value: aws.String(v), Type: types.ParameterTypeSecureString}}
}

func TestNew_RequiresAPI(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestGetParameter(t *testing.T) {
	api := &fakeAPI{out: value("s3cret")}
	c, err := New(api)
	require.NoError(t, err)

	v, err := c.GetParameter(context.Background(), " /tracker/jwt ")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)
	assert.Equal(t, "/tracker/jwt", aws.ToString(api.last.Name))
	assert.True(t, aws.ToBool(api.last.WithDecryption))
}

func TestGetParameter_Errors(t *testing.T) {
	c, err := New(&fakeAPI{err: errors.New("boom")})
	require.NoError(t, err)
	_, err = c.GetParameter(context.Background(), "p")
	assert.ErrorContains(t, err, "boom")

	_, err = c.GetParameter(context.Background(), "  ")
	assert.ErrorContains(t, err, "name is required")

	c, err = New(&fakeAPI{out: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: aws.String("p")}}})
	require.NoError(t, err)
	_, err = c.GetParameter(context.Background(), "p")
	assert.ErrorContains(t, err, "missing value")
}

func TestOverlay(t *testing.T) {
	c, err := New(&fakeAPI{out: value("from-ssm")})
	require.NoError(t, err)

	secret := "from-env"
	require.NoError(t, Overlay(context.Background(), c, "", &secret))
	assert.Equal(t, "from-env", secret)

	require.NoError(t, Overlay(context.Background(), c, "/tracker/jwt", &secret))
	assert.Equal(t, "from-ssm", secret)

	empty, err := New(&fakeAPI{out: value("")})
	require.NoError(t, err)
	assert.Error(t, Overlay(context.Background(), empty, "/tracker/jwt", &secret))
	assert.Equal(t, "from-ssm", secret)
}
