package cognito

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/unionco/idbridge/pkg/observability"
)

// Client is the typed adapter over the Cognito user pool operations
type Client struct {
	api        API
	hasher     *SecretHasher
	clientID   string
	userPoolID string
	logger     *observability.Logger
}

// NewClient constructs a Client backed by the real SDK
func NewClient(ctx context.Context, region, clientID, clientSecret, userPoolID string, logger *observability.Logger) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewClientWithAPI(cip.NewFromConfig(awsCfg), clientID, clientSecret, userPoolID, logger)
}

// NewClientWithAPI constructs a Client over an explicit API implementation
func NewClientWithAPI(api API, clientID, clientSecret, userPoolID string, logger *observability.Logger) (*Client, error) {
	hasher, err := NewSecretHasher(clientID, clientSecret)
	if err != nil {
		return nil, err
	}
	if userPoolID == "" {
		return nil, fmt.Errorf("user pool id is required")
	}

	return &Client{
		api:        api,
		hasher:     hasher,
		clientID:   clientID,
		userPoolID: userPoolID,
		logger:     logger.WithField("component", "cognito"),
	}, nil
}

// SecretHash exposes the signer for flows that need the raw signature
func (c *Client) SecretHash(username string) string {
	return c.hasher.Sign(username)
}

// InitiateAuth starts a password authentication exchange. The outcome is
// either tokens or a follow-up challenge.
func (c *Client) InitiateAuth(ctx context.Context, username, password string) (*ChallengeOutcome, error) {
	out, err := c.api.AdminInitiateAuth(ctx, &cip.AdminInitiateAuthInput{
		AuthFlow: types.AuthFlowTypeAdminNoSrpAuth,
		AuthParameters: map[string]string{
			"USERNAME":    username,
			"PASSWORD":    password,
			"SECRET_HASH": c.hasher.Sign(username),
		},
		ClientId:   aws.String(c.clientID),
		UserPoolId: aws.String(c.userPoolID),
	})
	if err != nil {
		return nil, providerError("initiate auth", err)
	}

	return outcomeFromAuth(out.AuthenticationResult, string(out.ChallengeName), out.Session, out.ChallengeParameters), nil
}

// Refresh exchanges a refresh token for fresh ID and access tokens. The pool
// does not rotate the refresh token on this flow.
func (c *Client) Refresh(ctx context.Context, username, refreshToken string) (*Tokens, error) {
	out, err := c.api.AdminInitiateAuth(ctx, &cip.AdminInitiateAuthInput{
		AuthFlow: types.AuthFlowTypeRefreshTokenAuth,
		AuthParameters: map[string]string{
			"USERNAME":      username,
			"REFRESH_TOKEN": refreshToken,
			"SECRET_HASH":   c.hasher.Sign(username),
		},
		ClientId:   aws.String(c.clientID),
		UserPoolId: aws.String(c.userPoolID),
	})
	if err != nil {
		return nil, providerError("refresh", err)
	}

	result := out.AuthenticationResult
	if result == nil {
		return nil, &ProviderError{Op: "refresh", Message: "no authentication result returned"}
	}

	return &Tokens{
		IDToken:     aws.ToString(result.IdToken),
		AccessToken: aws.ToString(result.AccessToken),
		ExpiresIn:   result.ExpiresIn,
	}, nil
}

// RespondToChallenge answers a pending challenge. The session must be the
// one the pool returned for this challenge; responses are merged over the
// username and secret hash the pool always requires.
func (c *Client) RespondToChallenge(ctx context.Context, challengeName, username, session string, responses map[string]string) (*ChallengeOutcome, error) {
	challengeResponses := map[string]string{
		"USERNAME":    username,
		"SECRET_HASH": c.hasher.Sign(username),
	}
	for k, v := range responses {
		challengeResponses[k] = v
	}

	out, err := c.api.AdminRespondToAuthChallenge(ctx, &cip.AdminRespondToAuthChallengeInput{
		ChallengeName:      types.ChallengeNameType(challengeName),
		ChallengeResponses: challengeResponses,
		ClientId:           aws.String(c.clientID),
		Session:            aws.String(session),
		UserPoolId:         aws.String(c.userPoolID),
	})
	if err != nil {
		return nil, providerError("respond to challenge", err)
	}

	return outcomeFromAuth(out.AuthenticationResult, string(out.ChallengeName), out.Session, out.ChallengeParameters), nil
}

// SignUp registers a user through the self-service flow and returns the
// subject identifier the pool assigned.
func (c *Client) SignUp(ctx context.Context, profile SignUpProfile) (string, error) {
	attrs := []types.AttributeType{
		{Name: aws.String("email"), Value: aws.String(profile.Email)},
	}
	attrs = appendAttr(attrs, "given_name", profile.FirstName)
	attrs = appendAttr(attrs, "family_name", profile.LastName)
	attrs = appendAttr(attrs, "phone_number", profile.Phone)

	username := profile.Username
	if username == "" {
		username = profile.Email
	}

	out, err := c.api.SignUp(ctx, &cip.SignUpInput{
		ClientId:       aws.String(c.clientID),
		Username:       aws.String(username),
		Password:       aws.String(profile.Password),
		SecretHash:     aws.String(c.hasher.Sign(username)),
		UserAttributes: attrs,
	})
	if err != nil {
		return "", providerError("sign up", err)
	}

	return aws.ToString(out.UserSub), nil
}

// ConfirmSignUp confirms a self-service registration with the emailed code
func (c *Client) ConfirmSignUp(ctx context.Context, username, code string) error {
	_, err := c.api.ConfirmSignUp(ctx, &cip.ConfirmSignUpInput{
		ClientId:         aws.String(c.clientID),
		Username:         aws.String(username),
		ConfirmationCode: aws.String(code),
		SecretHash:       aws.String(c.hasher.Sign(username)),
	})
	if err != nil {
		return providerError("confirm sign up", err)
	}
	return nil
}

// ResendConfirmationCode re-sends the sign-up confirmation code
func (c *Client) ResendConfirmationCode(ctx context.Context, username string) error {
	_, err := c.api.ResendConfirmationCode(ctx, &cip.ResendConfirmationCodeInput{
		ClientId:   aws.String(c.clientID),
		Username:   aws.String(username),
		SecretHash: aws.String(c.hasher.Sign(username)),
	})
	if err != nil {
		return providerError("resend confirmation code", err)
	}
	return nil
}

// AdminCreateUser creates a user administratively with a suppressed invite
// message and returns the pool-assigned subject.
func (c *Client) AdminCreateUser(ctx context.Context, profile AdminCreateProfile) (string, error) {
	attrs := []types.AttributeType{
		{Name: aws.String("given_name"), Value: aws.String(profile.FirstName)},
		{Name: aws.String("family_name"), Value: aws.String(profile.LastName)},
		{Name: aws.String("email"), Value: aws.String(profile.Email)},
		{Name: aws.String("email_verified"), Value: aws.String("true")},
	}
	if profile.Phone != "" {
		attrs = appendAttr(attrs, "phone_number", profile.Phone)
		attrs = appendAttr(attrs, "phone_verified", "true")
	}

	username := profile.Username
	if username == "" {
		username = profile.Email
	}

	out, err := c.api.AdminCreateUser(ctx, &cip.AdminCreateUserInput{
		UserPoolId:        aws.String(c.userPoolID),
		Username:          aws.String(username),
		MessageAction:     types.MessageActionTypeSuppress,
		TemporaryPassword: aws.String(profile.Password),
		UserAttributes:    attrs,
	})
	if err != nil {
		return "", providerError("admin create user", err)
	}

	if out.User == nil {
		return "", &ProviderError{Op: "admin create user", Message: "no user returned"}
	}
	return aws.ToString(out.User.Username), nil
}

// UpdateAttributes applies the non-empty attribute changes to a user
func (c *Client) UpdateAttributes(ctx context.Context, username string, update AttributeUpdate) error {
	var attrs []types.AttributeType
	attrs = appendAttr(attrs, "given_name", update.FirstName)
	attrs = appendAttr(attrs, "family_name", update.LastName)
	attrs = appendAttr(attrs, "phone_number", update.Phone)
	attrs = appendAttr(attrs, "email", update.Email)

	_, err := c.api.AdminUpdateUserAttributes(ctx, &cip.AdminUpdateUserAttributesInput{
		Username:       aws.String(username),
		UserPoolId:     aws.String(c.userPoolID),
		UserAttributes: attrs,
	})
	if err != nil {
		return providerError("update attributes", err)
	}
	return nil
}

// DeleteUser removes a user from the pool
func (c *Client) DeleteUser(ctx context.Context, username string) error {
	_, err := c.api.AdminDeleteUser(ctx, &cip.AdminDeleteUserInput{
		Username:   aws.String(username),
		UserPoolId: aws.String(c.userPoolID),
	})
	if err != nil {
		return providerError("delete user", err)
	}
	return nil
}

// DisableUser disables a user in the pool without deleting it
func (c *Client) DisableUser(ctx context.Context, username string) error {
	_, err := c.api.AdminDisableUser(ctx, &cip.AdminDisableUserInput{
		Username:   aws.String(username),
		UserPoolId: aws.String(c.userPoolID),
	})
	if err != nil {
		return providerError("disable user", err)
	}
	return nil
}

// ForgotPassword triggers the emailed reset code
func (c *Client) ForgotPassword(ctx context.Context, username string) error {
	_, err := c.api.ForgotPassword(ctx, &cip.ForgotPasswordInput{
		ClientId:   aws.String(c.clientID),
		Username:   aws.String(username),
		SecretHash: aws.String(c.hasher.Sign(username)),
	})
	if err != nil {
		return providerError("forgot password", err)
	}
	return nil
}

// ConfirmForgotPassword completes a forgot-password flow with the emailed
// code and the user's chosen password.
func (c *Client) ConfirmForgotPassword(ctx context.Context, username, code, newPassword string) error {
	_, err := c.api.ConfirmForgotPassword(ctx, &cip.ConfirmForgotPasswordInput{
		ClientId:         aws.String(c.clientID),
		Username:         aws.String(username),
		ConfirmationCode: aws.String(code),
		Password:         aws.String(newPassword),
		SecretHash:       aws.String(c.hasher.Sign(username)),
	})
	if err != nil {
		return providerError("confirm forgot password", err)
	}
	return nil
}

func outcomeFromAuth(result *types.AuthenticationResultType, challengeName string, session *string, parameters map[string]string) *ChallengeOutcome {
	if challengeName != "" {
		return &ChallengeOutcome{
			ChallengeName: challengeName,
			Session:       aws.ToString(session),
			Parameters:    parameters,
		}
	}

	outcome := &ChallengeOutcome{}
	if result != nil {
		outcome.Tokens = &Tokens{
			IDToken:      aws.ToString(result.IdToken),
			AccessToken:  aws.ToString(result.AccessToken),
			RefreshToken: aws.ToString(result.RefreshToken),
			ExpiresIn:    result.ExpiresIn,
		}
	}
	return outcome
}

func appendAttr(attrs []types.AttributeType, name, value string) []types.AttributeType {
	if value == "" {
		return attrs
	}
	return append(attrs, types.AttributeType{
		Name:  aws.String(name),
		Value: aws.String(value),
	})
}
