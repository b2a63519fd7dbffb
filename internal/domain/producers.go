package domain

import (
	"context"
	"fmt"
)

// RefKind tags what a notification reference points at. Only producers see
// the tag; the store and dispatcher keep the bare ID.
type RefKind string

const (
	RefPost    RefKind = "post"
	RefComment RefKind = "comment"
	RefEvent   RefKind = "event"
	RefStory   RefKind = "story"
	RefUser    RefKind = "user"
)

// Reference points at the entity that caused a notification.
type Reference struct {
	Kind RefKind
	ID   string
}

func PostRef(id string) Reference    { return Reference{Kind: RefPost, ID: id} }
func CommentRef(id string) Reference { return Reference{Kind: RefComment, ID: id} }
func EventRef(id string) Reference   { return Reference{Kind: RefEvent, ID: id} }
func StoryRef(id string) Reference   { return Reference{Kind: RefStory, ID: id} }
func UserRef(id string) Reference    { return Reference{Kind: RefUser, ID: id} }

// Actor is the user whose action produces a notification.
type Actor struct {
	ID   string
	Name string
}

func (a Actor) display() string {
	if a.Name != "" {
		return a.Name
	}
	return "Someone"
}

// Notifier renders notification messages for feature modules and hands them
// to the dispatcher. Each method is called after the feature's own write has
// succeeded; results are discarded.
type Notifier struct {
	creator NotificationCreator
}

func NewNotifier(creator NotificationCreator) *Notifier {
	return &Notifier{creator: creator}
}

func (n *Notifier) notify(ctx context.Context, recipientID string, actor Actor, typ NotificationType, message string, ref Reference) {
	_ = n.creator.CreateNotification(ctx, recipientID, actor.ID, typ, message, ref.ID)
}

func (n *Notifier) fanOut(ctx context.Context, recipientIDs []string, actor Actor, typ NotificationType, message string, ref Reference) {
	seen := make(map[string]struct{}, len(recipientIDs))
	for _, id := range recipientIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		n.notify(ctx, id, actor, typ, message, ref)
	}
}

func (n *Notifier) PostLiked(ctx context.Context, postOwnerID string, actor Actor, postID string) {
	n.notify(ctx, postOwnerID, actor, NotificationLike,
		fmt.Sprintf("%s liked your post", actor.display()), PostRef(postID))
}

func (n *Notifier) PostCommented(ctx context.Context, postOwnerID string, actor Actor, postID string) {
	n.notify(ctx, postOwnerID, actor, NotificationComment,
		fmt.Sprintf("%s commented on your post", actor.display()), PostRef(postID))
}

func (n *Notifier) CommentReplied(ctx context.Context, commentAuthorID string, actor Actor, commentID string) {
	n.notify(ctx, commentAuthorID, actor, NotificationCommentReply,
		fmt.Sprintf("%s replied to your comment", actor.display()), CommentRef(commentID))
}

// EventRSVP notifies the host; status is the RSVP answer ("going", "interested", ...).
func (n *Notifier) EventRSVP(ctx context.Context, hostID string, actor Actor, eventID, status string) {
	msg := fmt.Sprintf("%s responded to your event", actor.display())
	if status != "" {
		msg = fmt.Sprintf("%s is %s to your event", actor.display(), status)
	}
	n.notify(ctx, hostID, actor, NotificationEventRSVP, msg, EventRef(eventID))
}

func (n *Notifier) UserFollowed(ctx context.Context, followedID string, actor Actor) {
	n.notify(ctx, followedID, actor, NotificationFollow,
		fmt.Sprintf("%s started following you", actor.display()), UserRef(actor.ID))
}

func (n *Notifier) StoryViewed(ctx context.Context, storyOwnerID string, actor Actor, storyID string) {
	n.notify(ctx, storyOwnerID, actor, NotificationStoryView,
		fmt.Sprintf("%s viewed your story", actor.display()), StoryRef(storyID))
}

func (n *Notifier) StoryLiked(ctx context.Context, storyOwnerID string, actor Actor, storyID string) {
	n.notify(ctx, storyOwnerID, actor, NotificationStoryLike,
		fmt.Sprintf("%s liked your story", actor.display()), StoryRef(storyID))
}

func (n *Notifier) StoryCommented(ctx context.Context, storyOwnerID string, actor Actor, storyID string) {
	n.notify(ctx, storyOwnerID, actor, NotificationStoryComment,
		fmt.Sprintf("%s commented on your story", actor.display()), StoryRef(storyID))
}

// Mentioned notifies every mentioned user once. ref is the post or comment
// containing the mention.
func (n *Notifier) Mentioned(ctx context.Context, mentionedIDs []string, actor Actor, ref Reference) {
	where := "a post"
	if ref.Kind == RefComment {
		where = "a comment"
	}
	n.fanOut(ctx, mentionedIDs, actor, NotificationMention,
		fmt.Sprintf("%s mentioned you in %s", actor.display(), where), ref)
}

func (n *Notifier) PostShared(ctx context.Context, postOwnerID string, actor Actor, postID string) {
	n.notify(ctx, postOwnerID, actor, NotificationPostShare,
		fmt.Sprintf("%s shared your post", actor.display()), PostRef(postID))
}

func (n *Notifier) CloseFriendAdded(ctx context.Context, friendID string, actor Actor) {
	n.notify(ctx, friendID, actor, NotificationCloseFriend,
		fmt.Sprintf("%s added you to their close friends", actor.display()), UserRef(actor.ID))
}

func (n *Notifier) NewPost(ctx context.Context, followerIDs []string, actor Actor, postID string) {
	n.fanOut(ctx, followerIDs, actor, NotificationNewPost,
		fmt.Sprintf("%s shared a new post", actor.display()), PostRef(postID))
}

func (n *Notifier) NewEvent(ctx context.Context, followerIDs []string, actor Actor, eventID, title string) {
	msg := fmt.Sprintf("%s created a new event", actor.display())
	if title != "" {
		msg = fmt.Sprintf("%s created a new event: %s", actor.display(), title)
	}
	n.fanOut(ctx, followerIDs, actor, NotificationNewEvent, msg, EventRef(eventID))
}

func (n *Notifier) NewStory(ctx context.Context, followerIDs []string, actor Actor, storyID string) {
	n.fanOut(ctx, followerIDs, actor, NotificationNewStory,
		fmt.Sprintf("%s added to their story", actor.display()), StoryRef(storyID))
}
