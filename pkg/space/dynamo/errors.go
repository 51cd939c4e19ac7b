package dynamo

import (
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/oneconcern/gibsync/pkg/space/status"
)

// ThroughputErrorCode is the error code of requests refused for capacity reasons
const ThroughputErrorCode = dynamodb.ErrCodeProvisionedThroughputExceededException

func isThroughputError(err error) bool {
	aerr, ok := err.(awserr.Error)
	return ok && aerr.Code() == ThroughputErrorCode
}

func apiErrors(err awserr.RequestFailure) error {
	// https://docs.aws.amazon.com/amazondynamodb/latest/developerguide/Programming.Errors.html
	switch err.StatusCode() {
	case 400:
		switch err.Code() {
		case dynamodb.ErrCodeResourceNotFoundException:
			return status.ErrInvalidResource.Wrap(err)
		case "AccessDeniedException":
			return status.ErrForbidden.Wrap(err)
		case "UnrecognizedClientException", "MissingAuthenticationTokenException":
			return status.ErrUnauthorized.Wrap(err)
		}
		return status.ErrStorageAPI.Wrap(err)
	case 401:
		return status.ErrUnauthorized.Wrap(err)
	case 403:
		return status.ErrForbidden.Wrap(err)
	default:
		return status.ErrStorageAPI.Wrap(err)
	}
}

func toSentinelErrors(err error) error {
	// return sentinel errors defined by the status package
	if err == nil {
		return nil
	}
	if awsErr, isAWS := err.(awserr.RequestFailure); isAWS {
		return apiErrors(awsErr)
	}
	return err
}
